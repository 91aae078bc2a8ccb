package extract

import (
	"context"
	"strings"
)

// Merge combines the current answer with the website's version without an
// external model: the current text is kept and lines that only exist on
// the website are appended. When one answer already contains the other the
// longer one is returned as is.
func (x *HTMLExtractor) Merge(ctx context.Context, question, current, website string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cur, web := strings.TrimSpace(current), strings.TrimSpace(website)
	switch {
	case cur == "":
		return web, nil
	case web == "":
		return cur, nil
	}

	nc, nw := fold(cur), fold(web)
	switch {
	case nc == nw:
		return web, nil
	case strings.Contains(nw, nc):
		return web, nil
	case strings.Contains(nc, nw):
		return cur, nil
	}

	have := make(map[string]bool)
	for _, l := range lines(cur) {
		have[fold(l)] = true
	}
	merged := cur
	var added []string
	for _, l := range lines(web) {
		k := fold(l)
		if k == "" || have[k] {
			continue
		}
		have[k] = true
		added = append(added, l)
	}
	if len(added) > 0 {
		merged += "\n\n" + strings.Join(added, "\n")
	}
	return merged, nil
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(collapse(s))
}
