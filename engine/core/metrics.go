package core

import "github.com/spaghettifunk/aurora/engine/containers"

const AVG_COUNT = 30

// FrameMetrics keeps a rolling frame time average and the frames per second
// of a single frame executor.
type FrameMetrics struct {
	window             *containers.RingQueue[float64]
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
	Total              uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		window: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records the duration of one frame in seconds.
func (m *FrameMetrics) Update(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0
	if m.window.IsFull() {
		_, _ = m.window.Dequeue()
	}
	_ = m.window.Enqueue(frameMS)

	sum := 0.0
	m.window.Each(func(v float64) { sum += v })
	m.MSavg = sum / float64(m.window.Len())

	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	m.Frames++
	m.Total++
}

func (m *FrameMetrics) FPSValue() float64 {
	return m.FPS
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.MSavg
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}
