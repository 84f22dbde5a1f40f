package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type fence struct {
	mu       sync.Mutex
	signaled bool
	done     chan struct{}
}

func newFence(signaled bool) *fence {
	f := &fence{done: make(chan struct{})}
	if signaled {
		f.signaled = true
		close(f.done)
	}
	return f
}

func (f *fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled {
		f.signaled = true
		close(f.done)
	}
}

func (f *fence) isSignaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

type semaphore struct {
	mu      sync.Mutex
	pending int
}

func (s *semaphore) signal() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *semaphore) consume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return false
	}
	s.pending--
	return true
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.track("fence", 1)
	return newFence(signaled), nil
}

func (d *Device) WaitFence(gf gpu.Fence, timeout time.Duration) error {
	f := gf.(*fence)
	if d.isLost() {
		return gpu.ErrDeviceLost
	}
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		if d.isLost() {
			return gpu.ErrDeviceLost
		}
		return nil
	case <-timer.C:
		return gpu.ErrTimeout
	}
}

func (d *Device) ResetFence(gf gpu.Fence) error {
	f := gf.(*fence)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		f.signaled = false
		f.done = make(chan struct{})
	}
	return nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if f != nil {
		d.track("fence", -1)
	}
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.track("semaphore", 1)
	return &semaphore{}, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if s != nil {
		d.track("semaphore", -1)
	}
}

type work struct {
	run   func()
	trace []string
}

// queue executes submissions one at a time, in order.
type queue struct {
	dev     *Device
	items   chan work
	pending sync.WaitGroup
	stop    sync.Once
	exited  chan struct{}
}

func newQueue(d *Device) *queue {
	q := &queue{
		dev:    d,
		items:  make(chan work, 64),
		exited: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.exited)
	for w := range q.items {
		w.run()
		q.pending.Done()
	}
}

func (q *queue) push(w work) {
	q.pending.Add(1)
	q.items <- w
}

func (q *queue) idle() {
	q.pending.Wait()
}

func (q *queue) close() {
	q.stop.Do(func() {
		close(q.items)
		<-q.exited
	})
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	cb, ok := info.Commands.(*commandBuffer)
	if !ok {
		return fmt.Errorf("submit: foreign command buffer")
	}
	if st := cb.current(); st != stateEnded {
		return fmt.Errorf("submit: command buffer %s not ended", st)
	}
	var f *fence
	if info.Fence != nil {
		f = info.Fence.(*fence)
		if f.isSignaled() {
			d.validate("submit with fence that was not reset")
		}
	}
	cb.mu.Lock()
	cb.state = stateSubmitted
	cb.mu.Unlock()
	ops := cb.ops
	trace := append([]string(nil), cb.trace...)

	d.queue.push(work{trace: trace, run: func() {
		if d.opts.Latency > 0 {
			time.Sleep(d.opts.Latency)
		}
		for _, s := range info.Wait {
			if !s.(*semaphore).consume() {
				d.validate("submission waits on a semaphore nothing signaled")
			}
		}
		state := &execState{dev: d, bound: map[uint32]*bindingGroup{}}
		for _, op := range ops {
			op(state)
		}
		d.flushAll()
		d.mu.Lock()
		d.trace = append(d.trace, trace)
		d.mu.Unlock()
		for _, s := range info.Signal {
			s.(*semaphore).signal()
		}
		cb.complete()
		if f != nil {
			f.signal()
		}
	}})
	return nil
}

func (d *Device) WaitIdle() error {
	d.queue.idle()
	if d.isLost() {
		return gpu.ErrDeviceLost
	}
	return nil
}
