// Package candidate turns the loosely typed output of an extractor into
// strict question/answer pairs. Malformed items are skipped, never passed on.
package candidate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits applied to coerced candidates.
const (
	MaxQuestionLen = 1000
	MaxAnswerLen   = 20000
)

// Candidate is a validated question/answer pair extracted from a website.
type Candidate struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Skip records why an extracted item was dropped.
type Skip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

var (
	questionKeys = []string{"question", "q", "title"}
	answerKeys   = []string{"answer", "a", "text", "body"}
)

// Coerce validates raw extractor items in order. It returns the accepted
// candidates in extraction order and one Skip per rejected item. Exact
// duplicates of an earlier item are skipped.
func Coerce(raw []map[string]any) ([]Candidate, []Skip) {
	var out []Candidate
	var skips []Skip
	seen := make(map[Candidate]bool, len(raw))

	for i, item := range raw {
		c, err := coerceOne(item)
		if err != nil {
			skips = append(skips, Skip{Index: i, Reason: err.Error()})
			continue
		}
		if seen[c] {
			skips = append(skips, Skip{Index: i, Reason: "duplicate"})
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, skips
}

func coerceOne(item map[string]any) (Candidate, error) {
	if item == nil {
		return Candidate{}, fmt.Errorf("empty item")
	}
	q, err := stringField(item, questionKeys)
	if err != nil {
		return Candidate{}, fmt.Errorf("question: %w", err)
	}
	a, err := stringField(item, answerKeys)
	if err != nil {
		return Candidate{}, fmt.Errorf("answer: %w", err)
	}
	if utf8.RuneCountInString(q) > MaxQuestionLen {
		return Candidate{}, fmt.Errorf("question exceeds %d characters", MaxQuestionLen)
	}
	if utf8.RuneCountInString(a) > MaxAnswerLen {
		return Candidate{}, fmt.Errorf("answer exceeds %d characters", MaxAnswerLen)
	}
	return Candidate{Question: q, Answer: a}, nil
}

func stringField(item map[string]any, keys []string) (string, error) {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %q is %T, want string", k, v)
		}
		s = Clean(s)
		if s == "" {
			return "", fmt.Errorf("field %q is blank", k)
		}
		return s, nil
	}
	return "", fmt.Errorf("missing")
}

// Clean trims s, drops invalid UTF-8 and collapses runs of spaces and tabs.
// Newlines are kept so answers keep their paragraphs.
func Clean(s string) string {
	s = strings.ToValidUTF8(s, "")
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
