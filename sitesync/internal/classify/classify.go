// Package classify labels a matched candidate as unchanged, new or
// conflicting, and picks the website entries a run no longer reconfirms.
package classify

import (
	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
	"github.com/hazyhaar/sitesync/sitesync/internal/match"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

// Classification is the outcome for one candidate.
type Classification int

const (
	New Classification = iota
	Unchanged
	Conflict
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Unchanged:
		return "unchanged"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// Classifier applies the identity and match thresholds.
type Classifier struct {
	MatchThreshold    float64
	IdentityThreshold float64
}

// FromMatch builds a Classifier with the thresholds of a match config.
func FromMatch(cfg match.Config) Classifier {
	cfg.Defaults()
	return Classifier{MatchThreshold: cfg.MatchThreshold, IdentityThreshold: cfg.IdentityThreshold}
}

// Classify labels c given its best match r.
//
// No entry, or a score under the match threshold, is New. A score at or
// over the identity threshold with answers equal after normalization is
// Unchanged. Everything else is Conflict; in particular an entry with
// source manual is never replaced without a human decision.
func (cl Classifier) Classify(r match.Result, c candidate.Candidate) Classification {
	if r.Entry == nil || r.Score < cl.MatchThreshold {
		return New
	}
	if r.Score >= cl.IdentityThreshold && SameAnswer(r.Entry.Answer, c.Answer) {
		return Unchanged
	}
	return Conflict
}

// SameAnswer reports whether two answers are equal once whitespace, case
// and punctuation are normalized away.
func SameAnswer(a, b string) bool {
	return match.Normalize(a) == match.Normalize(b)
}

// Outdated returns the active website-sourced entries whose id is not in
// reconfirmed, in input order. Manual and document entries are never
// returned.
func Outdated(active []*store.Entry, reconfirmed map[string]bool) []*store.Entry {
	var out []*store.Entry
	for _, e := range active {
		if e.Source != store.SourceWebsite || e.Status != store.EntryActive {
			continue
		}
		if !reconfirmed[e.ID] {
			out = append(out, e)
		}
	}
	return out
}
