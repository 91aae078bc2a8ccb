package match

import (
	"math"
	"testing"

	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Hva er ÅPNINGSTIDENE? ", "hva er åpningstidene"},
		{"09:00–16:00", "09 00 16 00"},
		{"A\u030angstrom", "ångstrom"}, // decomposed å composes under NFC
		{"?!", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Åpningstider?", "åpningstider", 1},
		{"Åpningstider?", "Hva er åpningstidene?", 0.8696},
		{"09:00–16:00", "09:00–17:00", 0.75},
		{"", "anything", 0},
		{"Do you deliver to Norway?", "What are your opening hours?", 0},
	}
	for _, tt := range tests {
		if got := TextSimilarity(tt.a, tt.b); !approx(got, tt.want) {
			t.Errorf("TextSimilarity(%q, %q) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTextSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"Hvor lang er leveringstiden?", "Leveringstid for pakker"},
		{"Do you ship abroad?", "Shipping abroad and customs"},
	}
	for _, p := range pairs {
		if TextSimilarity(p[0], p[1]) != TextSimilarity(p[1], p[0]) {
			t.Errorf("asymmetric for %q / %q", p[0], p[1])
		}
	}
}

func TestMatch_OpeningHoursScenario(t *testing.T) {
	// WHAT: The reworded question with a changed closing time matches the
	// existing entry with a score between the match and identity thresholds.
	// WHY: That band is what produces a conflict instead of a new entry.
	m := New(Config{})
	existing := &store.Entry{ID: "e1", Question: "Åpningstider?", Answer: "09:00–16:00"}
	other := &store.Entry{ID: "e2", Question: "Do you deliver to Norway?", Answer: "Yes"}

	r := m.Match(candidate.Candidate{Question: "Hva er åpningstidene?", Answer: "09:00–17:00"},
		[]*store.Entry{other, existing})
	if r.Entry != existing {
		t.Fatalf("best entry: %+v", r.Entry)
	}
	cfg := m.Config()
	if r.Score < cfg.MatchThreshold || r.Score >= cfg.IdentityThreshold {
		t.Fatalf("score %.4f outside (%.2f, %.2f)", r.Score, cfg.MatchThreshold, cfg.IdentityThreshold)
	}
	if !approx(r.Score, 0.8337) {
		t.Fatalf("score: got %.4f", r.Score)
	}
}

func TestMatch_BelowThresholdHasNoEntry(t *testing.T) {
	m := New(Config{})
	r := m.Match(candidate.Candidate{Question: "Hva koster frakt?", Answer: "Frakt koster 49 kr"},
		[]*store.Entry{{ID: "e1", Question: "Hvor lang er leveringstiden?", Answer: "2-3 virkedager"}})
	if r.Entry != nil {
		t.Fatalf("unexpected match with score %.3f", r.Score)
	}
	if r := m.Match(candidate.Candidate{Question: "x", Answer: "y"}, nil); r.Entry != nil || r.Score != 0 {
		t.Fatalf("empty entries: %+v", r)
	}
}

func TestMatch_TieBreak(t *testing.T) {
	// WHAT: Equal scores go to the most recently updated entry, then the
	// smaller id, independent of input order.
	// WHY: Matching must be reproducible across runs.
	m := New(Config{})
	older := &store.Entry{ID: "a", Question: "Returrett?", Answer: "30 dager", UpdatedAt: 100}
	newer := &store.Entry{ID: "b", Question: "Returrett?", Answer: "30 dager", UpdatedAt: 200}
	twin := &store.Entry{ID: "c", Question: "Returrett?", Answer: "30 dager", UpdatedAt: 200}
	c := candidate.Candidate{Question: "Returrett?", Answer: "30 dager"}

	for _, order := range [][]*store.Entry{{older, newer, twin}, {twin, newer, older}} {
		if r := m.Match(c, order); r.Entry != newer {
			t.Fatalf("tie-break picked %s", r.Entry.ID)
		}
	}
}

func TestMatch_CustomWeights(t *testing.T) {
	m := New(Config{QuestionWeight: 0.5, AnswerWeight: 0.5, MatchThreshold: 0.9, IdentityThreshold: 0.99})
	r := m.Match(candidate.Candidate{Question: "Do you ship abroad?", Answer: "No, only within Norway."},
		[]*store.Entry{{ID: "e1", Question: "Do you ship abroad?", Answer: "Yes we ship to all EU countries."}})
	if r.Entry != nil {
		t.Fatalf("score %.3f should be below custom threshold", r.Score)
	}
	if !approx(r.Score, 0.5) {
		t.Fatalf("score: %.4f", r.Score)
	}
}
