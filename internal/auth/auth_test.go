package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var testConfig = Config{Secret: "test-secret"}

func signMap(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseUsesIDClaimBeforeSubject(t *testing.T) {
	token := signMap(t, jwt.MapClaims{"id": "u-1", "sub": "ignored", "email": "a@b.c"}, testConfig.Secret)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "a@b.c", claims.Email)
	require.Equal(t, "user", claims.Role)
}

func TestParseAcceptsNumericIdentity(t *testing.T) {
	token := signMap(t, jwt.MapClaims{"sub": 42, "role": "admin"}, testConfig.Secret)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "42", claims.UserID)
	require.Equal(t, "admin", claims.Role)
}

func TestParseKeepsLargeNumericIdentityExact(t *testing.T) {
	// 2^53 + 1 has no exact float64 form
	token := signMap(t, jwt.MapClaims{"id": int64(9007199254740993)}, testConfig.Secret)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "9007199254740993", claims.UserID)
}

func TestParseAcceptsNumericExpiry(t *testing.T) {
	expired := signMap(t, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}, testConfig.Secret)
	_, err := Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	live := signMap(t, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(time.Hour).Unix()}, testConfig.Secret)
	claims, err := Parse(live, testConfig)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = Parse("not-a-jwt", testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongKey := signMap(t, jwt.MapClaims{"sub": "u-1"}, "other-secret")
	_, err = Parse(wrongKey, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject := signMap(t, jwt.MapClaims{"email": "x@y.z"}, testConfig.Secret)
	_, err = Parse(noSubject, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseEnforcesIssuerWhenConfigured(t *testing.T) {
	cfg := Config{Secret: "s", Issuer: "enrollment"}

	good, err := Sign(Claims{UserID: "u-1"}, cfg)
	require.NoError(t, err)
	_, err = Parse(good, cfg)
	require.NoError(t, err)

	bad := signMap(t, jwt.MapClaims{"sub": "u-1", "iss": "someone-else"}, "s")
	_, err = Parse(bad, cfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, PathSkipper("/api/health")).Wrap(next)

	token, err := Sign(Claims{UserID: "u-7"}, testConfig)
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"missing", "/api/enrollments/mine", "", http.StatusUnauthorized, "Missing token"},
		{"wrong scheme", "/api/enrollments/mine", "Basic abc", http.StatusUnauthorized, "Invalid token"},
		{"garbage", "/api/enrollments/mine", "Bearer abc", http.StatusUnauthorized, "Invalid token"},
		{"valid", "/api/enrollments/mine", "Bearer " + token, http.StatusNoContent, ""},
		{"skipped", "/api/health", "", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.Equal(t, tt.wantError, body["error"])
			}
			if tt.name == "valid" {
				require.NotNil(t, seen)
				require.Equal(t, "u-7", seen.UserID)
			}
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	interceptor := UnaryServerInterceptor(testConfig, "/grpc.health.v1.Health/Check")
	info := &grpc.UnaryServerInfo{FullMethod: "/enrollment.v1.EnrollmentService/Enroll"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		claims, ok := FromContext(ctx)
		if !ok {
			return nil, nil
		}
		return claims.UserID, nil
	}

	_, err := interceptor(context.Background(), nil, info, handler)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	token, err := Sign(Claims{UserID: "u-9"}, testConfig)
	require.NoError(t, err)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	resp, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	require.Equal(t, "u-9", resp)

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err = interceptor(context.Background(), nil, health, handler)
	require.NoError(t, err)
}
