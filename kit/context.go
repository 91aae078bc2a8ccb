package kit

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	transportKey
	requestIDKey
)

// Transports recorded by WithTransport.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithUserID records the acting user. Resolutions store it as resolved_by.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID returns the acting user, or "".
func GetUserID(ctx context.Context) string { return value(ctx, userIDKey) }

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport returns the surface that received the call, http by default.
func GetTransport(ctx context.Context) string {
	if t := value(ctx, transportKey); t != "" {
		return t
	}
	return TransportHTTP
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string { return value(ctx, requestIDKey) }
