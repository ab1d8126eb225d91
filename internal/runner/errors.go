package runner

import (
	"time"

	"leadflow-engine/internal/state"
)

// trailing window for 429 accumulation
const errorWindowSpan = 10 * time.Minute

// errorWindow counts rate-limit errors in a trailing window, persisted in
// the state store so concurrent runs against the same API share the count.
// Last-write-wins races are acceptable here; the count only gates a pause.
type errorWindow struct {
	store state.Store
	key   string
	now   func() time.Time
}

func newErrorWindow(store state.Store, api string, now func() time.Time) *errorWindow {
	return &errorWindow{store: store, key: "ratelimit429:" + api, now: now}
}

func (w *errorWindow) load() []int64 {
	var ts []int64
	state.GetJSON(w.store, w.key, &ts)
	cutoff := w.now().Add(-errorWindowSpan).Unix()
	kept := ts[:0]
	for _, t := range ts {
		if t >= cutoff {
			kept = append(kept, t)
		}
	}
	return kept
}

func (w *errorWindow) Record() {
	ts := append(w.load(), w.now().Unix())
	state.PutJSON(w.store, w.key, ts, errorWindowSpan+5*time.Minute)
}

func (w *errorWindow) Count() int {
	return len(w.load())
}

func (w *errorWindow) Reset() {
	w.store.Forget(w.key)
}
