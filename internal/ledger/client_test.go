package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinABI(t *testing.T) {
	parsed, err := loadABI("")
	require.NoError(t, err)

	require.Contains(t, parsed.Events, "ProjectRegistered")
	require.Contains(t, parsed.Events, "CreditsRetired")
	require.Contains(t, parsed.Methods, "registerProject")
	require.Contains(t, parsed.Methods, "retireCredits")
	require.Contains(t, parsed.Methods, "getProject")

	// 幂等键必须是第一个索引参数，事件过滤依赖这个位置
	registered := parsed.Events["ProjectRegistered"]
	require.NotEmpty(t, registered.Inputs)
	assert.Equal(t, "idempotencyKey", registered.Inputs[0].Name)
	assert.True(t, registered.Inputs[0].Indexed)

	retired := parsed.Events["CreditsRetired"]
	require.NotEmpty(t, retired.Inputs)
	assert.Equal(t, "idempotencyKey", retired.Inputs[0].Name)
	assert.True(t, retired.Inputs[0].Indexed)
}

func TestRevertReason(t *testing.T) {
	t.Run("revert with reason", func(t *testing.T) {
		reason, reverted := revertReason(errors.New("execution reverted: duplicate registration"))
		assert.True(t, reverted)
		assert.Equal(t, "duplicate registration", reason)
	})

	t.Run("revert without reason", func(t *testing.T) {
		reason, reverted := revertReason(errors.New("execution reverted"))
		assert.True(t, reverted)
		assert.Equal(t, "execution reverted", reason)
	})

	t.Run("wrapped revert", func(t *testing.T) {
		_, reverted := revertReason(errors.New("failed to estimate gas: execution reverted: paused"))
		assert.True(t, reverted)
	})

	t.Run("transport error is not a revert", func(t *testing.T) {
		_, reverted := revertReason(errors.New("connection refused"))
		assert.False(t, reverted)
	})
}

func TestParseTopicValue(t *testing.T) {
	uintType, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	addrType, err := abi.NewType("address", "", nil)
	require.NoError(t, err)
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	require.NoError(t, err)

	t.Run("uint topic", func(t *testing.T) {
		topic := common.BigToHash(big.NewInt(12345))
		v, err := parseTopicValue(topic, uintType)
		require.NoError(t, err)
		assert.Equal(t, "12345", v)
	})

	t.Run("address topic", func(t *testing.T) {
		addr := common.HexToAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72")
		topic := common.HexToHash(addr.Hex())
		v, err := parseTopicValue(topic, addrType)
		require.NoError(t, err)
		assert.Equal(t, addr.Hex(), v)
	})

	t.Run("bytes32 topic keeps hex form", func(t *testing.T) {
		topic := common.HexToHash("0xdeadbeef")
		v, err := parseTopicValue(topic, bytes32Type)
		require.NoError(t, err)
		assert.Equal(t, topic.Hex(), v)
	})
}
