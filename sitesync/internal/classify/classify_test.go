package classify

import (
	"testing"

	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
	"github.com/hazyhaar/sitesync/sitesync/internal/match"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

func classifyAgainst(e *store.Entry, c candidate.Candidate) Classification {
	m := match.New(match.Config{})
	cl := FromMatch(m.Config())
	return cl.Classify(m.Match(c, []*store.Entry{e}), c)
}

func TestClassify_IdenticalIsUnchanged(t *testing.T) {
	// WHAT: A candidate identical in question and answer is always Unchanged,
	// whatever the entry's source.
	// WHY: Re-running a sync on an unchanged site must be a no-op.
	for _, src := range []string{store.SourceWebsite, store.SourceManual, store.SourceDocument} {
		e := &store.Entry{ID: "e1", Question: "Hva er returretten?", Answer: "30 dager åpent kjøp.", Source: src}
		got := classifyAgainst(e, candidate.Candidate{Question: "Hva er returretten?", Answer: "30 dager åpent kjøp."})
		if got != Unchanged {
			t.Fatalf("source %s: got %s, want unchanged", src, got)
		}
	}
}

func TestClassify_SameQuestionDifferentAnswerIsConflict(t *testing.T) {
	e := &store.Entry{ID: "e1", Question: "Do you ship abroad?", Answer: "Yes, to all EU countries.", Source: store.SourceManual}
	for _, answer := range []string{"No, only within Norway.", "Yes, to all EU countries and the UK.", "x"} {
		got := classifyAgainst(e, candidate.Candidate{Question: "Do you ship abroad?", Answer: answer})
		if got != Conflict {
			t.Fatalf("answer %q: got %s, want conflict", answer, got)
		}
	}
}

func TestClassify_UnrelatedIsNew(t *testing.T) {
	e := &store.Entry{ID: "e1", Question: "Hvor lang er leveringstiden?", Answer: "2-3 virkedager"}
	got := classifyAgainst(e, candidate.Candidate{Question: "Hva koster frakt?", Answer: "Frakt koster 49 kr"})
	if got != New {
		t.Fatalf("got %s, want new", got)
	}
}

func TestClassify_PunctuationOnlyDifferenceIsUnchanged(t *testing.T) {
	e := &store.Entry{ID: "e1", Question: "Returrett?", Answer: "30 dager åpent kjøp"}
	got := classifyAgainst(e, candidate.Candidate{Question: "Hva er returretten?", Answer: "30 dager, åpent kjøp."})
	if got != Unchanged {
		t.Fatalf("got %s, want unchanged", got)
	}
}

func TestClassify_OpeningHoursScenario(t *testing.T) {
	cl := Classifier{MatchThreshold: 0.55, IdentityThreshold: 0.92}
	e := &store.Entry{ID: "e1", Question: "Åpningstider?", Answer: "09:00–16:00"}
	c := candidate.Candidate{Question: "Hva er åpningstidene?", Answer: "09:00–17:00"}
	if got := cl.Classify(match.Result{Entry: e, Score: 0.88}, c); got != Conflict {
		t.Fatalf("got %s, want conflict", got)
	}
	// High score but differing answers is still a conflict.
	if got := cl.Classify(match.Result{Entry: e, Score: 0.95}, c); got != Conflict {
		t.Fatalf("got %s, want conflict", got)
	}
	if got := cl.Classify(match.Result{Entry: e, Score: 0.5}, c); got != New {
		t.Fatalf("got %s, want new", got)
	}
}

func TestOutdated(t *testing.T) {
	active := []*store.Entry{
		{ID: "w1", Source: store.SourceWebsite, Status: store.EntryActive},
		{ID: "w2", Source: store.SourceWebsite, Status: store.EntryActive},
		{ID: "m1", Source: store.SourceManual, Status: store.EntryActive},
		{ID: "d1", Source: store.SourceDocument, Status: store.EntryActive},
		{ID: "w3", Source: store.SourceWebsite, Status: store.EntryOutdated},
	}
	got := Outdated(active, map[string]bool{"w2": true})
	if len(got) != 1 || got[0].ID != "w1" {
		t.Fatalf("outdated: %+v", got)
	}
}

func TestClassification_String(t *testing.T) {
	for c, want := range map[Classification]string{New: "new", Unchanged: "unchanged", Conflict: "conflict", 9: "unknown"} {
		if c.String() != want {
			t.Errorf("%d: got %q", c, c.String())
		}
	}
}
