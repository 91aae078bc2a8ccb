package kit

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// UserHeader names the header an upstream auth proxy sets with the caller id.
const UserHeader = "X-User-ID"

// HTTPContext copies the acting user and chi's request id into the request
// context so handlers and endpoints read them through GetUserID/GetRequestID.
// Mount after middleware.RequestID.
func HTTPContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithTransport(r.Context(), TransportHTTP)
		if u := r.Header.Get(UserHeader); u != "" {
			ctx = WithUserID(ctx, u)
		}
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
