package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greenchain/ccrs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabled(t *testing.T) {
	ix := New(nil, nil, config.IndexerConfig{Enabled: false})
	assert.Nil(t, ix)

	// nil索引器的方法可以安全调用
	require.NoError(t, ix.RunOnce(context.Background()))
	_, _, err := ix.ListEvents("", 1, 20)
	assert.Error(t, err)
}

func TestBackoffSchedule(t *testing.T) {
	ix := &Indexer{batchSize: 500}
	rpcErr := errors.New("429 too many requests")

	// 退避时间随连续失败次数线性增长，超过5次封顶5分钟
	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		30 * time.Second,
		40 * time.Second,
		50 * time.Second,
		5 * time.Minute,
		5 * time.Minute,
	}
	for i, d := range want {
		ix.handleError(rpcErr)
		assert.Equal(t, i+1, ix.retryCount)
		assert.Equal(t, d, ix.backoffDuration)
	}
}

func TestBackoffWindow(t *testing.T) {
	ix := &Indexer{batchSize: 500}

	assert.False(t, ix.inBackoff(), "fresh indexer should not back off")

	ix.handleError(errors.New("connection refused"))
	assert.True(t, ix.inBackoff(), "should back off right after an error")

	// 窗口过期后恢复执行
	ix.mu.Lock()
	ix.lastErrTime = time.Now().Add(-time.Hour)
	ix.mu.Unlock()
	assert.False(t, ix.inBackoff())
}

func TestBackoffResetOnSuccess(t *testing.T) {
	ix := &Indexer{batchSize: 500}

	ix.handleError(errors.New("timeout"))
	ix.handleError(errors.New("timeout"))
	require.Equal(t, 2, ix.retryCount)

	ix.resetBackoff()
	assert.Equal(t, 0, ix.retryCount)
	assert.Zero(t, ix.backoffDuration)
	assert.False(t, ix.inBackoff())
}
