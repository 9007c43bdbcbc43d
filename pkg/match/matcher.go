// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package match pairs independent hand-clasp samples into gesture matches.
// The matcher knows nothing about rooms or connections; callers attach an
// opaque context to each sample and get it back in the match callback.
package match

import (
	"math"
	"sync"
	"time"
)

// A Sample describes one user's clasp pose at the moment they clicked.
type Sample struct {
	// LeftHeight is the height of the left hand off the floor.
	LeftHeight float64

	// RightHeight is the height of the right hand off the floor.
	RightHeight float64

	// Distance is the distance from the left hand to the right hand.
	Distance float64

	// Context identifies this sample in callback events.
	Context any

	// addedAt is when the sample entered the pending buffer.
	addedAt time.Time
}

// Result reports what happened to a sample.
type Result int

const (
	// TimedOut means the sample went unmatched for longer than the timeout
	// period and will no longer be considered.
	TimedOut Result = iota

	// Matched means the sample was paired with another sample; both contexts
	// are passed to the callback.
	Matched

	// Replaced means a newer sample arrived under the same context and the
	// old one was discarded.
	Replaced
)

// Callback receives every match, replacement, and timeout event.
type Callback func(result Result, contexts []any)

const (
	distanceThreshold       = 0.02
	relativeHeightThreshold = 0.02
	absoluteHeightThreshold = 0.02
	sampleTimeout           = time.Second
	sweepInterval           = 100 * time.Millisecond
)

func nearlyEqual(a, b, threshold float64) bool {
	return math.Abs(a-b) <= threshold
}

// A Matcher buffers pending samples and emits events through its callback.
// AddSample and the periodic expiry sweep are mutually exclusive; the
// callback runs under the matcher's lock, so it must not call back into the
// matcher.
type Matcher struct {
	mu       sync.Mutex
	pending  []Sample // arrival order
	callback Callback
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Matcher and starts its expiry sweep.
// Stop must be called to shut the sweep down.
func New(callback Callback) *Matcher {
	m := &Matcher{
		callback: callback,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Stop halts the expiry sweep. Pending samples are dropped without events.
func (m *Matcher) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// AddSample submits a sample for matching. A pending sample under the same
// context is replaced first; then the buffer is scanned in arrival order and
// the first fit wins. If nothing fits, the sample is buffered until it
// matches or times out.
func (m *Matcher) AddSample(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, old := range m.pending {
		if old.Context == s.Context {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			m.callback(Replaced, []any{old.Context})
			break
		}
	}

	if old, ok := m.takeMatch(s); ok {
		m.callback(Matched, []any{s.Context, old.Context})
		return
	}

	s.addedAt = m.now()
	m.pending = append(m.pending, s)
}

// takeMatch scans for the first pending sample that fits s, removing and
// returning it. The two users stand facing each other, so one side's left
// hand is the other's right: relative hand heights are mirrored and the
// absolute height of the clasped pair must agree.
func (m *Matcher) takeMatch(s Sample) (Sample, bool) {
	for i, old := range m.pending {
		if nearlyEqual(s.Distance, old.Distance, distanceThreshold) &&
			nearlyEqual(s.RightHeight-s.LeftHeight, old.LeftHeight-old.RightHeight, relativeHeightThreshold) &&
			nearlyEqual(s.LeftHeight, old.RightHeight, absoluteHeightThreshold) {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return old, true
		}
	}
	return Sample{}, false
}

func (m *Matcher) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.expireOldSamples()
		case <-m.done:
			return
		}
	}
}

// expireOldSamples drops samples older than the timeout. The buffer is in
// arrival order, so the scan can stop at the first sample still fresh.
func (m *Matcher) expireOldSamples() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-sampleTimeout)
	for len(m.pending) > 0 {
		s := m.pending[0]
		if s.addedAt.After(cutoff) {
			break
		}
		m.pending = m.pending[1:]
		m.callback(TimedOut, []any{s.Context})
	}
}
