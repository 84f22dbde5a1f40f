package vulkan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPoolSerializesGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(PipelineManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, counter)
}

func TestLockPoolReturnsCallError(t *testing.T) {
	pool := NewVulkanLockPool()
	boom := errors.New("boom")
	err := pool.SafeCall(QueueManagement, func() error { return boom })
	require.ErrorIs(t, err, boom)

	// The group is unlocked again after a failing call.
	require.NoError(t, pool.SafeCall(QueueManagement, func() error { return nil }))
}
