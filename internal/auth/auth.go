package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const defaultRole = "user"

// Config holds the HS256 verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the caller identity extracted from a verified token.
type Claims struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Parse validates an HS256 token and normalizes its identity claims. The user id comes
// from "id" when present, otherwise "sub"; either may be a string or a number.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithJSONNumber(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID := identity(claims["id"])
	if userID == "" {
		userID = identity(claims["sub"])
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if role == "" {
		role = defaultRole
	}

	return &Claims{UserID: userID, Email: email, Name: name, Role: role}, nil
}

func identity(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		// kept as decoded text so ids above 2^53 survive
		return v.String()
	}
	return ""
}

// Sign issues an HS256 token for the given claims. Used by tooling and tests; token
// issuance is not exposed over any transport.
func Sign(c Claims, cfg Config) (string, error) {
	mc := jwt.MapClaims{"sub": c.UserID}
	if c.Email != "" {
		mc["email"] = c.Email
	}
	if c.Name != "" {
		mc["name"] = c.Name
	}
	if c.Role != "" {
		mc["role"] = c.Role
	}
	if cfg.Issuer != "" {
		mc["iss"] = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte(cfg.Secret))
}
