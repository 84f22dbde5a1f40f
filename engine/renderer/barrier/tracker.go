package barrier

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// Tracker remembers the state every physical resource was last moved to and
// panics when a barrier declares a different prior state or an illegal
// transition. It does nothing in release builds.
type Tracker struct {
	images  map[gpu.Image]State
	buffers map[gpu.Buffer]State
}

func NewTracker() *Tracker {
	return &Tracker{
		images:  make(map[gpu.Image]State),
		buffers: make(map[gpu.Buffer]State),
	}
}

// Enabled reports whether barrier validation is compiled in.
func Enabled() bool {
	return trackingEnabled
}

// Observe checks the batch resolved from b against the known states and
// records the new ones.
func (t *Tracker) Observe(b Barrier, batch gpu.BarrierBatch) {
	if !trackingEnabled || t == nil {
		return
	}
	for i, ib := range b.Images {
		img := batch.Images[i].Image
		if err := checkImage(ib, t.images[img], t.hasImage(img)); err != nil {
			panic(fmt.Sprintf("barrier on %s: %s", img.Label(), err))
		}
		t.images[img] = ib.Next
	}
	for i, bb := range b.Buffers {
		buf := batch.Buffers[i].Buffer
		if known, ok := t.buffers[buf]; ok {
			if err := checkAccess(bb.Prior, known); err != nil {
				panic(fmt.Sprintf("barrier on %s: %s", buf.Label(), err))
			}
		}
		t.buffers[buf] = bb.Next
	}
}

func (t *Tracker) hasImage(img gpu.Image) bool {
	_, ok := t.images[img]
	return ok
}

func checkImage(ib ImageBarrier, known State, seen bool) error {
	from := PhaseOf(ib.Prior)
	if ib.Prior.Layout != gpu.LayoutUndefined && seen {
		if known.Layout != ib.Prior.Layout {
			return fmt.Errorf("declared prior layout %s, last recorded %s", ib.Prior.Layout, known.Layout)
		}
		if err := checkAccess(ib.Prior, known); err != nil {
			return err
		}
	}
	to := PhaseOf(ib.Next)
	if !Legal(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	return nil
}

// checkAccess rejects a prior state that would leave the last recorded
// write unflushed. Tasks between barriers may change the access without a
// barrier seeing it, so only this direction is decidable here.
func checkAccess(prior, known State) error {
	if known.Access.HasWrite() && !prior.Access.HasWrite() {
		return fmt.Errorf("declared prior access %s, last recorded write %s", prior.Access, known.Access)
	}
	return nil
}

// State returns the last recorded state of img.
func (t *Tracker) State(img gpu.Image) (State, bool) {
	if t == nil {
		return State{}, false
	}
	s, ok := t.images[img]
	return s, ok
}

// Reset forgets everything, e.g. after resources were rebuilt.
func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.images = make(map[gpu.Image]State)
	t.buffers = make(map[gpu.Buffer]State)
}
