package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const faqPage = `<!doctype html>
<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"FAQPage","mainEntity":[
 {"@type":"Question","name":"Do you ship abroad?","acceptedAnswer":{"@type":"Answer","text":"<p>We ship to all <strong>EU</strong> countries.</p>"}},
 {"@type":"Question","name":"Returrett?","acceptedAnswer":{"@type":"Answer","text":"30 dager"}}
]}
</script>
<script>var q = "Is this a question?";</script>
</head><body>
<nav><h2>Need help?</h2><p>Menu</p></nav>
<h1>Ofte stilte spørsmål</h1>
<details><summary>Hva er åpningstidene?</summary><p>Mandag til fredag 09:00–16:00</p></details>
<details><summary>Do you ship abroad?</summary><p>Duplicate from the structured data.</p></details>
<dl>
  <dt>Tar dere kort?</dt><dd>Ja, alle vanlige kort.</dd>
  <dt>Empty</dt>
</dl>
<h2>Frakt</h2>
<h3>Hva koster frakt?</h3>
<p>Frakt koster 49 kr.</p>
<p>Gratis over 500 kr.</p>
<h3>Om oss</h3>
<p>Not a question.</p>
</body></html>`

func TestHTMLExtractor_Extract(t *testing.T) {
	// WHAT: Every supported FAQ markup yields a candidate in document order,
	// structured data first.
	// WHY: The sync engine processes candidates in extraction order.
	x := NewHTML()
	got, err := x.Extract(context.Background(), []byte(faqPage), "https://example.no/faq")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := []struct{ question, origin, answerPart string }{
		{"Do you ship abroad?", OriginJSONLD, "**EU**"},
		{"Returrett?", OriginJSONLD, "30 dager"},
		{"Hva er åpningstidene?", OriginDetails, "09:00–16:00"},
		{"Tar dere kort?", OriginDL, "alle vanlige kort"},
		{"Hva koster frakt?", OriginHeading, "Gratis over 500 kr"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates: %v", len(got), got)
	}
	for i, w := range want {
		c := got[i]
		if c["question"] != w.question || c["origin"] != w.origin {
			t.Errorf("candidate %d: %v", i, c)
		}
		if a, _ := c["answer"].(string); !strings.Contains(a, w.answerPart) {
			t.Errorf("candidate %d answer %q missing %q", i, a, w.answerPart)
		}
	}
}

func TestHTMLExtractor_HeadingStopsAtNextHeading(t *testing.T) {
	page := `<body><h3>Hvor lang er leveringstiden?</h3><p>2-3 virkedager</p><h3>Neste</h3><p>Annet</p></body>`
	got, err := NewHTML().Extract(context.Background(), []byte(page), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %v", got)
	}
	if a := got[0]["answer"].(string); strings.Contains(a, "Annet") {
		t.Fatalf("answer leaked into the next section: %q", a)
	}
}

func TestHTMLExtractor_StripsUnsafeMarkup(t *testing.T) {
	// WHAT: Scripts and event handlers inside an answer never reach the output.
	// WHY: Answers are shown to end users by the chat assistant.
	page := `<details><summary>Is it safe?</summary><p onclick="steal()">Yes<script>alert(1)</script></p></details>`
	got, err := NewHTML().Extract(context.Background(), []byte(page), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %v", got)
	}
	a := got[0]["answer"].(string)
	if strings.Contains(a, "alert") || strings.Contains(a, "steal") {
		t.Fatalf("unsafe content kept: %q", a)
	}
}

func TestHTMLExtractor_NoFAQ(t *testing.T) {
	got, err := NewHTML().Extract(context.Background(), []byte(`<p>Welcome to our shop.</p>`), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing, got %v", got)
	}
}

func TestHTMLExtractor_JSONLDGraph(t *testing.T) {
	page := `<script type="application/ld+json">{"@graph":[{"@type":"WebPage"},
	{"@type":["FAQPage"],"mainEntity":{"@type":"Question","name":"Parkering?","acceptedAnswer":{"text":"Gratis parkering bak butikken."}}}]}</script>`
	got, err := NewHTML().Extract(context.Background(), []byte(page), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0]["question"] != "Parkering?" {
		t.Fatalf("got %v", got)
	}
}

func TestHTMLExtractor_Merge(t *testing.T) {
	x := NewHTML()
	ctx := context.Background()
	tests := []struct {
		name, current, website, want string
	}{
		{"identical", "30 dager", "30  Dager", "30  Dager"},
		{"website extends", "Åpent 09:00–16:00", "Åpent 09:00–16:00\nLørdag 10:00–14:00", "Åpent 09:00–16:00\nLørdag 10:00–14:00"},
		{"current extends", "Ja.\nOgså Vipps.", "Ja.", "Ja.\nOgså Vipps."},
		{"disjoint", "Frakt 49 kr", "Gratis over 500 kr", "Frakt 49 kr\n\nGratis over 500 kr"},
		{"empty current", "", "Ny tekst", "Ny tekst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.Merge(ctx, "q", tt.current, tt.website)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/extract":
			var req extractRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.BaseURL != "https://example.no" || !strings.Contains(req.Content, "<h1>") {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{"question": "Q?", "answer": "A"}},
			})
		case "/merge":
			var req mergeRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(map[string]string{"answer": req.CurrentAnswer + " + " + req.WebsiteAnswer})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rx := NewRemote(srv.URL+"/", nil)
	ctx := context.Background()

	cands, err := rx.Extract(ctx, []byte("<h1>x</h1>"), "https://example.no")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(cands) != 1 || cands[0]["question"] != "Q?" {
		t.Fatalf("candidates: %v", cands)
	}

	merged, err := rx.Merge(ctx, "Q?", "a", "b")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged != "a + b" {
		t.Fatalf("merged: %q", merged)
	}

	if _, err := rx.Extract(ctx, []byte("no heading"), "https://example.no"); err == nil {
		t.Fatal("expected error on HTTP 400")
	}
}
