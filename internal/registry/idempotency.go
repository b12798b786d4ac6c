package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/greenchain/ccrs/internal/model"
)

// 幂等键由操作内容确定性推导，同一操作的重试得到同一个键，
// 链上合约以键为准去重，保证每个键至多产生一次状态变更。

// RegisterKey 注册操作的幂等键
func RegisterKey(projectID string) string {
	return deriveKey(projectID, model.OpRegister, 0, 0)
}

// RetireKey 注销操作的幂等键。
// retiredSoFar把已注销累计值编进键里：失败后重试（累计值未变）得到同一个键，
// 而上一次成功之后的新注销（累计值已变）得到新键，不会误判为已完成。
func RetireKey(projectID string, amount, retiredSoFar int64) string {
	return deriveKey(projectID, model.OpRetire, amount, retiredSoFar)
}

func deriveKey(projectID string, kind model.OperationKind, amount, retiredSoFar int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", projectID, kind, amount, retiredSoFar)))
	return hex.EncodeToString(sum[:])
}
