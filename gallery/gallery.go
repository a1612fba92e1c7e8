// Package gallery holds the reference embeddings of known identities and
// finds the nearest one to a candidate.
package gallery

import (
	"errors"
	"fmt"
	"math"

	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"go.uber.org/zap"
)

var (
	ErrLengthMismatch = errors.New("embedding length mismatch")
	ErrEmptyGallery   = errors.New("gallery is empty")
)

// Entry is one known identity. Label is the source file name.
type Entry struct {
	Label     string
	Embedding iface.Embedding
}

// Matcher is immutable once built and safe for concurrent reads.
type Matcher struct {
	entries []Entry
}

func New(entries []Entry) *Matcher {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Matcher{entries: cp}
}

// Entries returns a copy of the gallery in match order.
func (m *Matcher) Entries() []Entry {
	cp := make([]Entry, len(m.entries))
	copy(cp, m.entries)
	return cp
}

func (m *Matcher) Len() int {
	return len(m.entries)
}

// Distance is the sum of squared element differences, accumulated in float64.
func Distance(a, b iface.Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	var total float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		total += d * d
	}
	return total, nil
}

// Match compares candidate with every entry in gallery order. Entries of a
// different length are skipped and counted. On equal distances the earlier
// entry wins. BestIndex is the nearest entry even when it is above threshold.
func (m *Matcher) Match(candidate iface.Embedding, threshold float64) iface.MatchDecision {
	decision := iface.MatchDecision{
		BestIndex:    -1,
		BestDistance: math.Inf(1),
	}
	for i, e := range m.entries {
		dist, err := Distance(e.Embedding, candidate)
		if err != nil {
			decision.Skipped++
			logger.Log().Warn("skipping gallery entry",
				zap.String("label", e.Label),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		if dist < decision.BestDistance {
			decision.BestDistance = dist
			decision.BestIndex = i
		}
	}
	if decision.BestIndex >= 0 {
		decision.Label = m.entries[decision.BestIndex].Label
		decision.Matched = decision.BestDistance <= threshold
	}
	return decision
}
