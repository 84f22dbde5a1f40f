package core

// System event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	EVENT_CODE_KEY_PRESSED      SystemEventCode = 0x02
	EVENT_CODE_KEY_RELEASED     SystemEventCode = 0x03
	// Resized/resolution changed from the OS.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// One or more shader binaries changed on disk.
	EVENT_CODE_SHADERS_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type ShaderEvent struct {
	Paths []string
}

type FnOnEvent func(context EventContext)

// EventQueue collects events fired from callbacks and other goroutines and
// dispatches them on the thread that calls Dispatch.
type EventQueue struct {
	pending   chan EventContext
	listeners map[SystemEventCode][]FnOnEvent
}

func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{
		pending:   make(chan EventContext, capacity),
		listeners: make(map[SystemEventCode][]FnOnEvent),
	}
}

// Register must not be called concurrently with Dispatch.
func (q *EventQueue) Register(code SystemEventCode, fn FnOnEvent) {
	q.listeners[code] = append(q.listeners[code], fn)
}

// Fire never blocks. It reports false when the queue is full and the event
// was dropped.
func (q *EventQueue) Fire(context EventContext) bool {
	select {
	case q.pending <- context:
		return true
	default:
		LogWarn("event queue full, dropping event %d", context.Type)
		return false
	}
}

// Dispatch delivers every queued event to its listeners and returns how many
// events were handled.
func (q *EventQueue) Dispatch() int {
	n := 0
	for {
		select {
		case ev := <-q.pending:
			for _, fn := range q.listeners[ev.Type] {
				fn(ev)
			}
			n++
		default:
			return n
		}
	}
}
