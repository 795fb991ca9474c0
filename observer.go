package levmarq

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// TraceObserver logs every iteration at trace level. Meant for debugging a
// handful of events; it serializes on the logger.
func TraceObserver(log *logrus.Entry) Observer {
	return ObserverFunc(func(it Iteration) {
		if !log.Logger.IsLevelEnabled(logrus.TraceLevel) {
			return
		}
		log.WithFields(logrus.Fields{
			"event":    it.Event,
			"it":       it.Number,
			"u1":       it.U1,
			"u2":       it.U2,
			"u3":       it.U3,
			"roh":      it.Roh,
			"mu":       it.MuAfter,
			"accepted": it.Accepted,
			"finished": it.Finished,
		}).Trace("iteration")
	})
}

// Recorder keeps every observed iteration, grouped by event.
type Recorder struct {
	mu     sync.Mutex
	events map[int][]Iteration
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{events: make(map[int][]Iteration)}
}

// ObserveIteration implements Observer
func (r *Recorder) ObserveIteration(it Iteration) {
	r.mu.Lock()
	r.events[it.Event] = append(r.events[it.Event], it)
	r.mu.Unlock()
}

// Event returns the iterations of one event in order
func (r *Recorder) Event(event int) []Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Iteration, len(r.events[event]))
	copy(out, r.events[event])
	return out
}

// Events returns the recorded event indices in ascending order
func (r *Recorder) Events() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.events))
	for ev := range r.events {
		out = append(out, ev)
	}
	sort.Ints(out)
	return out
}

// MultiObserver fans an iteration out to several observers
func MultiObserver(obs ...Observer) Observer {
	return ObserverFunc(func(it Iteration) {
		for _, o := range obs {
			o.ObserveIteration(it)
		}
	})
}
