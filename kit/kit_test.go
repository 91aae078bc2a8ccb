package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("got %v, %v", resp, err)
	}
	want := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("order: got %v, want %v", order, want)
	}
}

func TestLogging_PropagatesError(t *testing.T) {
	// WHAT: Logging passes errors through and logs them at warn level.
	// WHY: MCP tool failures must stay visible in the service log.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	errFail := errors.New("fail")
	ep := Logging(logger, "sitesync_run")(func(context.Context, any) (any, error) {
		return nil, errFail
	})
	if _, err := ep(WithTransport(context.Background(), "mcp"), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "endpoint=sitesync_run") || !strings.Contains(out, "transport=mcp") {
		t.Fatalf("log line missing attributes: %s", out)
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" || GetRequestID(ctx) != "" {
		t.Fatal("expected empty defaults")
	}
	if GetTransport(ctx) != "http" {
		t.Fatalf("default transport: got %q", GetTransport(ctx))
	}
	ctx = WithUserID(ctx, "usr_1")
	if GetUserID(ctx) != "usr_1" {
		t.Fatalf("user: got %q", GetUserID(ctx))
	}
}

func TestHTTPContext(t *testing.T) {
	// WHAT: The user header and chi request id reach the handler context.
	// WHY: Conflict resolutions record resolved_by from the context.
	var gotUser, gotReq string
	h := middleware.RequestID(HTTPContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotReq = GetRequestID(r.Context())
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != "alice" {
		t.Fatalf("user: got %q", gotUser)
	}
	if gotReq == "" {
		t.Fatal("request id not propagated")
	}
}
