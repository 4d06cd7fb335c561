package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timayz/pikav"
)

type testIdentity struct {
	key *rsa.PrivateKey
	kid string
	srv *httptest.Server
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	id := &testIdentity{key: key, kid: "test-key-1"}
	id.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
		e := base64.RawURLEncoding.EncodeToString(big64(key.PublicKey.E))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{"kty": "RSA", "kid": id.kid, "alg": "RS256", "n": n, "e": e},
			},
		})
	}))
	t.Cleanup(id.srv.Close)
	return id
}

func big64(e int) []byte {
	b := []byte{byte(e >> 16), byte(e >> 8), byte(e)}
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func (id *testIdentity) token(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok.Header["kid"] = id.kid
	signed, err := tok.SignedString(id.key)
	require.NoError(t, err)
	return signed
}

func TestServer_Subscribe_RequiresBearerToken(t *testing.T) {
	id := newTestIdentity(t)
	pub := pikav.NewPublisher()
	s := NewServer(pub, id.srv.URL)

	req := httptest.NewRequest(http.MethodPut, "/subscribe/a/b", nil)
	req.Header.Set(clientIDHeader, "some-session")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Subscribe_HappyPath(t *testing.T) {
	id := newTestIdentity(t)
	pub := pikav.NewPublisher()
	sess, _, err := pub.CreateSession()
	require.NoError(t, err)

	s := NewServer(pub, id.srv.URL)

	req := httptest.NewRequest(http.MethodPut, "/subscribe/a/b", nil)
	req.Header.Set("Authorization", "Bearer "+id.token(t, "alice"))
	req.Header.Set(clientIDHeader, sess.ID())
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sess.FilterCount())
}

func TestServer_Subscribe_UnknownSessionIs404(t *testing.T) {
	id := newTestIdentity(t)
	pub := pikav.NewPublisher()
	s := NewServer(pub, id.srv.URL)

	req := httptest.NewRequest(http.MethodPut, "/subscribe/a/b", nil)
	req.Header.Set("Authorization", "Bearer "+id.token(t, "alice"))
	req.Header.Set(clientIDHeader, "does-not-exist")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Subscribe_MissingClientIDIs400(t *testing.T) {
	id := newTestIdentity(t)
	pub := pikav.NewPublisher()
	s := NewServer(pub, id.srv.URL)

	req := httptest.NewRequest(http.MethodPut, "/subscribe/a/b", nil)
	req.Header.Set("Authorization", "Bearer "+id.token(t, "alice"))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
