package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Middleware provides HTTP middleware for bearer-token validation.
type Middleware struct {
	Config  Config
	Skipper Skipper
}

// NewMiddleware constructs a middleware with optional skipper.
func NewMiddleware(cfg Config, skipper Skipper) Middleware {
	return Middleware{Config: cfg, Skipper: skipper}
}

// PathSkipper skips authentication for the listed exact paths.
func PathSkipper(paths ...string) Skipper {
	open := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		open[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := open[r.URL.Path]
		return ok
	}
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := parseHeader(r.Header.Get("Authorization"), m.Config)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UnaryServerInterceptor validates the bearer token carried in the "authorization"
// metadata of every unary call except the listed full method names.
func UnaryServerInterceptor(cfg Config, skipMethods ...string) grpc.UnaryServerInterceptor {
	skip := make(map[string]struct{}, len(skipMethods))
	for _, m := range skipMethods {
		skip[m] = struct{}{}
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := skip[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}

		claims, err := parseHeader(header, cfg)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, message(err))
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

func parseHeader(header string, cfg Config) (*Claims, error) {
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	return Parse(header[len("Bearer "):], cfg)
}

func message(err error) string {
	if errors.Is(err, ErrMissingToken) {
		return "Missing token"
	}
	return "Invalid token"
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message(err)})
}
