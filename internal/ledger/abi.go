package ledger

// 注册表合约ABI定义（内置版，配置未指定abi_path时使用）
const registryABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "idempotencyKey", "type": "bytes32"},
			{"indexed": true, "name": "tokenId", "type": "uint256"},
			{"indexed": false, "name": "projectId", "type": "string"},
			{"indexed": false, "name": "owner", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "ProjectRegistered",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "idempotencyKey", "type": "bytes32"},
			{"indexed": true, "name": "tokenId", "type": "uint256"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "reason", "type": "string"}
		],
		"name": "CreditsRetired",
		"type": "event"
	},
	{
		"inputs": [
			{"name": "projectId", "type": "string"},
			{"name": "owner", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "idempotencyKey", "type": "bytes32"}
		],
		"name": "registerProject",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "tokenId", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "reason", "type": "string"},
			{"name": "idempotencyKey", "type": "bytes32"}
		],
		"name": "retireCredits",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "getProject",
		"outputs": [
			{"name": "owner", "type": "address"},
			{"name": "issued", "type": "uint256"},
			{"name": "retired", "type": "uint256"},
			{"name": "exists", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`
