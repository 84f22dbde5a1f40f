package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueDispatchesInOrder(t *testing.T) {
	q := NewEventQueue(8)
	var got []KeyCode
	q.Register(EVENT_CODE_KEY_PRESSED, func(context EventContext) {
		got = append(got, context.Data.(*KeyEvent).KeyCode)
	})

	assert.True(t, q.Fire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_R}}))
	assert.True(t, q.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 1, WindowHeight: 1}}))
	assert.True(t, q.Fire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_ESCAPE}}))

	assert.Equal(t, 3, q.Dispatch())
	assert.Equal(t, []KeyCode{KEY_R, KEY_ESCAPE}, got)
	assert.Equal(t, 0, q.Dispatch())
}

func TestEventQueueDropsWhenFull(t *testing.T) {
	q := NewEventQueue(1)
	assert.True(t, q.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	assert.False(t, q.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	assert.Equal(t, 1, q.Dispatch())
}

func TestEventQueueFireFromGoroutines(t *testing.T) {
	q := NewEventQueue(64)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Fire(EventContext{Type: EVENT_CODE_SHADERS_CHANGED, Data: &ShaderEvent{}})
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, q.Dispatch())
}
