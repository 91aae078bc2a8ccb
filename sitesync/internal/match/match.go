// Package match scores website FAQ candidates against existing knowledge
// entries. Matching is pure and deterministic: the same candidate and
// entries always give the same result, whatever the entry order.
package match

import (
	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

// Config holds the scoring weights and thresholds.
type Config struct {
	QuestionWeight float64 `yaml:"question_weight" json:"question_weight"`
	AnswerWeight   float64 `yaml:"answer_weight" json:"answer_weight"`
	// MatchThreshold is the minimum score for a candidate to match an
	// entry at all.
	MatchThreshold float64 `yaml:"match_threshold" json:"match_threshold"`
	// IdentityThreshold is the minimum score for a match with equal
	// answers to count as unchanged.
	IdentityThreshold float64 `yaml:"identity_threshold" json:"identity_threshold"`
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.QuestionWeight == 0 && c.AnswerWeight == 0 {
		c.QuestionWeight = 0.7
		c.AnswerWeight = 0.3
	}
	if c.MatchThreshold == 0 {
		c.MatchThreshold = 0.55
	}
	if c.IdentityThreshold == 0 {
		c.IdentityThreshold = 0.92
	}
}

// Result is the best match for a candidate. Entry is nil when no entry
// reached the match threshold; Score is then the best score seen.
type Result struct {
	Entry         *store.Entry `json:"entry,omitempty"`
	Score         float64      `json:"score"`
	QuestionScore float64      `json:"question_score"`
	AnswerScore   float64      `json:"answer_score"`
}

// Matcher finds the best existing entry for a candidate.
type Matcher struct {
	cfg Config
}

// New returns a Matcher. Zero config fields take their defaults.
func New(cfg Config) *Matcher {
	cfg.Defaults()
	return &Matcher{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Matcher) Config() Config { return m.cfg }

// Match scores c against every entry and returns the highest-scoring one.
// Ties go to the most recently updated entry, then to the smaller id.
func (m *Matcher) Match(c candidate.Candidate, entries []*store.Entry) Result {
	cq, ca := Normalize(c.Question), Normalize(c.Answer)

	var best Result
	found := false
	for _, e := range entries {
		q := similarity(cq, Normalize(e.Question))
		a := similarity(ca, Normalize(e.Answer))
		score := round(m.cfg.QuestionWeight*q + m.cfg.AnswerWeight*a)
		r := Result{Entry: e, Score: score, QuestionScore: q, AnswerScore: a}
		if !found || better(r, best) {
			best = r
			found = true
		}
	}
	if !found {
		return Result{}
	}
	if best.Score < m.cfg.MatchThreshold {
		best.Entry = nil
	}
	return best
}

func better(r, than Result) bool {
	if r.Score != than.Score {
		return r.Score > than.Score
	}
	if r.Entry.UpdatedAt != than.Entry.UpdatedAt {
		return r.Entry.UpdatedAt > than.Entry.UpdatedAt
	}
	return r.Entry.ID < than.Entry.ID
}

// round keeps six decimals so float noise cannot flip a threshold or a tie.
func round(f float64) float64 {
	const p = 1e6
	return float64(int64(f*p+0.5)) / p
}
