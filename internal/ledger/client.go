package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/model"
	"github.com/greenchain/ccrs/internal/registry"
)

// 注册表合约在配置中的名称
const registryContractName = "registry"

// Client 注册表合约的链上客户端
type Client struct {
	eth           *ethclient.Client
	privateKey    *ecdsa.PrivateKey
	chainId       *big.Int
	address       common.Address
	contract      *bind.BoundContract
	contractABI   abi.ABI
	confirmations int64
	deployBlock   int64
}

// New 创建链上客户端
func New(cfg config.ChainConfig) (*Client, error) {
	// 连接链客户端
	eth, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain client: %w", err)
	}

	// 解析私钥
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	contractCfg, ok := cfg.Contracts[registryContractName]
	if !ok {
		return nil, fmt.Errorf("contract %q not configured", registryContractName)
	}

	parsedABI, err := loadABI(contractCfg.ABIPath)
	if err != nil {
		return nil, err
	}

	contractAddr := common.HexToAddress(contractCfg.Address)
	contract := bind.NewBoundContract(contractAddr, parsedABI, eth, eth, eth)

	logger.Info("Initialized ledger client (chain id: %d, contract: %s)", cfg.ChainId, contractAddr.Hex())

	return &Client{
		eth:           eth,
		privateKey:    privateKey,
		chainId:       big.NewInt(cfg.ChainId),
		address:       contractAddr,
		contract:      contract,
		contractABI:   parsedABI,
		confirmations: cfg.Confirmations,
		deployBlock:   contractCfg.BlockNum,
	}, nil
}

// loadABI 加载合约ABI；path为空时使用内置ABI
func loadABI(path string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(registryABI))
	}

	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}

	// 首先尝试解析为完整编译输出
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsed, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsed, nil
	}

	// 如果不是完整编译输出，尝试直接解析为ABI数组
	parsed, err := abi.JSON(bytes.NewReader(abiData))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}

// Submit 按幂等键广播一次状态变更调用
func (c *Client) Submit(ctx context.Context, op registry.Operation, idempotencyKey string) (registry.CallHandle, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainId)
	if err != nil {
		return registry.CallHandle{}, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	keyHash := common.HexToHash(idempotencyKey)

	var tx *types.Transaction
	switch op.Kind {
	case model.OpRegister:
		tx, err = c.contract.Transact(auth, "registerProject",
			op.ProjectID, common.HexToAddress(op.Owner), big.NewInt(op.Amount), keyHash)
	case model.OpRetire:
		tokenId, ok := new(big.Int).SetString(op.TokenId, 10)
		if !ok {
			return registry.CallHandle{}, fmt.Errorf("invalid token id: %s", op.TokenId)
		}
		tx, err = c.contract.Transact(auth, "retireCredits",
			tokenId, big.NewInt(op.Amount), op.Reason, keyHash)
	default:
		return registry.CallHandle{}, fmt.Errorf("unknown operation kind: %s", op.Kind)
	}

	if err != nil {
		// 广播前的gas预估会在本地复现revert，此时结果是确定的拒绝
		if reason, reverted := revertReason(err); reverted {
			return registry.CallHandle{}, &registry.RejectionError{Reason: reason}
		}
		return registry.CallHandle{}, fmt.Errorf("failed to submit %s for project %s: %w", op.Kind, op.ProjectID, err)
	}

	logger.Info("Submitted %s for project %s, tx: %s", op.Kind, op.ProjectID, tx.Hash().Hex())
	return registry.CallHandle{TxHash: tx.Hash().Hex()}, nil
}

// QueryOutcome 按幂等键过滤合约事件查询链上真实结果
func (c *Client) QueryOutcome(ctx context.Context, idempotencyKey string) (registry.Outcome, error) {
	registeredID := c.contractABI.Events["ProjectRegistered"].ID
	retiredID := c.contractABI.Events["CreditsRetired"].ID

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(c.deployBlock),
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{
			{registeredID, retiredID},
			{common.HexToHash(idempotencyKey)},
		},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return registry.Outcome{}, fmt.Errorf("failed to filter logs: %w", err)
	}
	if len(logs) == 0 {
		return registry.Outcome{Status: registry.OutcomePending}, nil
	}

	lg := logs[0]

	// 检查确认深度
	latest, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return registry.Outcome{}, fmt.Errorf("failed to get latest block: %w", err)
	}
	if latest < lg.BlockNumber+uint64(c.confirmations) {
		return registry.Outcome{Status: registry.OutcomePending}, nil
	}

	if len(lg.Topics) < 3 {
		return registry.Outcome{}, fmt.Errorf("unexpected event topics for key %s", idempotencyKey)
	}
	tokenId := new(big.Int).SetBytes(lg.Topics[2].Bytes())

	return registry.Outcome{
		Status: registry.OutcomeConfirmed,
		Ref: &registry.LedgerRef{
			TokenId:     tokenId.String(),
			TxHash:      lg.TxHash.Hex(),
			BlockNumber: int64(lg.BlockNumber),
		},
	}, nil
}

// TxReceiptStatus 查询交易回执状态。
// revert不产生事件，事件过滤查不到的在途操作由对账扫描用回执判定：
// 回执status为0且达到确认深度即为确定性拒绝。
func (c *Client) TxReceiptStatus(ctx context.Context, txHash string) (registry.ReceiptStatus, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return registry.ReceiptNone, nil
		}
		return "", fmt.Errorf("failed to get receipt for tx %s: %w", txHash, err)
	}

	latest, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get latest block: %w", err)
	}
	if latest < receipt.BlockNumber.Uint64()+uint64(c.confirmations) {
		return registry.ReceiptPending, nil
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return registry.ReceiptSucceeded, nil
	}
	return registry.ReceiptFailed, nil
}

// ReadProjectState 读取项目的链上公开视图
func (c *Client) ReadProjectState(ctx context.Context, tokenId string) (registry.PublicProjectView, error) {
	id, ok := new(big.Int).SetString(tokenId, 10)
	if !ok {
		return registry.PublicProjectView{}, fmt.Errorf("invalid token id: %s", tokenId)
	}

	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getProject", id)
	if err != nil {
		return registry.PublicProjectView{}, fmt.Errorf("failed to read project state: %w", err)
	}
	if len(out) < 4 {
		return registry.PublicProjectView{}, fmt.Errorf("unexpected getProject output")
	}

	owner, _ := out[0].(common.Address)
	issued, _ := out[1].(*big.Int)
	retired, _ := out[2].(*big.Int)
	exists, _ := out[3].(bool)

	view := registry.PublicProjectView{
		Exists: exists,
		Owner:  owner.Hex(),
	}
	if issued != nil {
		view.CreditsIssued = issued.Int64()
	}
	if retired != nil {
		view.CreditsRetired = retired.Int64()
	}
	return view, nil
}

// ParseEvent 解析事件日志（事件索引器使用）
func (c *Client) ParseEvent(log types.Log) (map[string]interface{}, error) {
	eventSignature := log.Topics[0].Hex()

	// 遍历ABI中的事件
	for eventName, event := range c.contractABI.Events {
		if event.ID.Hex() == eventSignature {
			return c.parseEvent(eventName, log, event)
		}
	}

	return nil, fmt.Errorf("unknown event signature: %s", eventSignature)
}

// parseEvent 解析事件
func (c *Client) parseEvent(eventName string, log types.Log, event abi.Event) (map[string]interface{}, error) {
	result := make(map[string]interface{})
	result["eventName"] = eventName
	result["txHash"] = log.TxHash.Hex()
	result["blockNumber"] = log.BlockNumber
	result["logIndex"] = log.Index

	// 解析索引参数
	indexed := 0
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		indexed++
		if indexed >= len(log.Topics) {
			break
		}
		value, err := parseTopicValue(log.Topics[indexed], input.Type)
		if err != nil {
			logger.Warn("Failed to parse indexed parameter %s: %v", input.Name, err)
			continue
		}
		result[input.Name] = value
	}

	// 解析非索引参数
	if len(log.Data) > 0 {
		values, err := c.contractABI.Unpack(eventName, log.Data)
		if err != nil {
			logger.Warn("Failed to unpack non-indexed parameters: %v", err)
		} else {
			i := 0
			for _, input := range event.Inputs {
				if input.Indexed {
					continue
				}
				if i < len(values) {
					result[input.Name] = values[i]
				}
				i++
			}
		}
	}

	return result, nil
}

// parseTopicValue 解析主题值
func parseTopicValue(topic common.Hash, t abi.Type) (interface{}, error) {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		return new(big.Int).SetBytes(topic.Bytes()).String(), nil
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes()).Hex(), nil
	case abi.BoolTy:
		return new(big.Int).SetBytes(topic.Bytes()).Sign() > 0, nil
	default:
		return topic.Hex(), nil
	}
}

// revertReason 从提交错误中提取revert原因
func revertReason(err error) (string, bool) {
	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[idx+len(marker):], ": ")
	if reason == "" {
		reason = marker
	}
	return reason, true
}

// Eth 获取底层链客户端（事件索引器使用）
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Address 获取合约地址
func (c *Client) Address() common.Address {
	return c.address
}

// DeployBlock 获取合约部署区块号
func (c *Client) DeployBlock() int64 {
	return c.deployBlock
}

// Confirmations 获取确认区块数
func (c *Client) Confirmations() int64 {
	return c.confirmations
}

// AccountAddress 获取签名账户地址
func (c *Client) AccountAddress() common.Address {
	return crypto.PubkeyToAddress(c.privateKey.PublicKey)
}

// Close 关闭客户端
func (c *Client) Close() {
	c.eth.Close()
}
