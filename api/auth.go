package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/timayz/pikav"
)

// clientIDHeader carries the caller's session id on subscribe/unsubscribe
// requests (spec §4.6, §6).
const clientIDHeader = "X-Pikav-Client-ID"

// claims is the minimal JWT claim set pikav relies on: only the subject
// (the authenticated user id) is meaningful to the publisher.
type claims struct {
	jwt.RegisteredClaims
}

// authenticate extracts and verifies the bearer JWT from r, returning the
// subject claim on success. Mirrors spec §4.6's "extracts sub from a JWT
// validated via JWKS."
func authenticate(r *http.Request, jwks *JWKSClient) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", pikav.ErrUnauthorized
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.ParseWithClaims(raw, &claims{}, jwks.KeyFunc())
	if err != nil || !token.Valid {
		return "", pikav.ErrUnauthorized
	}

	c, ok := token.Claims.(*claims)
	if !ok || c.Subject == "" {
		return "", pikav.ErrUnauthorized
	}
	return c.Subject, nil
}

// clientID extracts the caller-supplied session id header.
func clientID(r *http.Request) (string, error) {
	id := r.Header.Get(clientIDHeader)
	if id == "" {
		return "", errors.New("pikav/api: missing " + clientIDHeader + " header")
	}
	return id, nil
}
