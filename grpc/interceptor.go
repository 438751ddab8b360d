package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VerifyTokenFunc validates a signed auth token and returns the user id.
// The HTTP layer's (*authgate.Auth).VerifyAuthToken satisfies this.
type VerifyTokenFunc func(token string) (userID string, err error)

// InterceptorConfig configures the auth interceptor behavior
type InterceptorConfig struct {
	// VerifyToken validates the bearer token from request metadata
	VerifyToken VerifyTokenFunc

	// MetadataKey is the metadata key holding the token.
	// Defaults to "authorization".
	MetadataKey string

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns "".
	RequireAuth bool

	// PublicMethods don't require auth even when RequireAuth is set.
	// Keys are full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except the listed public ones
func NewInterceptorConfig(verify VerifyTokenFunc, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		VerifyToken:   verify,
		MetadataKey:   DefaultMetadataKeyAuthToken,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKeyAuthToken
	}
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// authenticate resolves the caller from metadata. An empty user id with a nil
// error means anonymous.
func (c *InterceptorConfig) authenticate(ctx context.Context) (string, error) {
	token := tokenFromMetadata(ctx, c.MetadataKey)
	if token == "" {
		return "", nil
	}
	if c.VerifyToken == nil {
		return "", nil
	}
	userID, err := c.VerifyToken(token)
	if err != nil {
		return "", err
	}
	return userID, nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that validates the
// auth token and exposes the user id to handlers via UserIDFromContext
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		userID, err := config.authenticate(ctx)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if err != nil || userID == "" {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		if userID != "" {
			ctx = WithUserID(ctx, userID)
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream-side equivalent of
// UnaryAuthInterceptor
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		userID, err := config.authenticate(ctx)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if err != nil || userID == "" {
				return status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		if userID != "" {
			ss = &wrappedStream{ServerStream: ss, ctx: WithUserID(ctx, userID)}
		}
		return handler(srv, ss)
	}
}

// wrappedStream overrides the stream context with the authenticated one
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
