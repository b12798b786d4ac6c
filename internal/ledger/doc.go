// Package ledger 实现碳信用注册表合约的链上客户端。
//
// 合约在 registerProject 内部一次性完成项目凭证铸造和对应数量碳信用的
// 发行，因此引擎侧只有注册、注销两类上链操作。
//
// 幂等约定：每次状态变更调用携带一个bytes32幂等键，合约按键去重并在
// 事件中以indexed参数回放该键。QueryOutcome 按键过滤合约事件：查到且
// 达到确认深度即为确认，查不到即为进行中。交易revert不产生事件，
// 确定性拒绝有两条观察路径：广播阶段的gas预估复现revert（RejectionError），
// 以及对账扫描对已记录交易哈希的回执核对（TxReceiptStatus 返回失败）。
package ledger
