// Package api implements the HTTP/SSE glue that translates the contract
// surface in spec §4.6 into Publisher and cluster calls: PUT /subscribe,
// PUT /unsubscribe, GET /events, plus an operational GET /metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/timayz/pikav"
	"github.com/timayz/pikav/cluster"
)

// Server wires a Publisher, an optional set of same-region cluster peers,
// and a JWKS client into the HTTP contract surface.
type Server struct {
	pub         *pikav.Publisher
	jwks        *JWKSClient
	peers       []*cluster.Peer
	metricsAuth string

	mux *http.ServeMux
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithPeers registers cluster peers for same-region subscribe/unsubscribe
// fan-out (spec §4.6, §6 "Peer URL query parameter").
func WithPeers(peers ...*cluster.Peer) Option {
	return func(s *Server) { s.peers = append(s.peers, peers...) }
}

// WithMetricsAuth sets the bearer token required to read /metrics; empty
// disables the gate.
func WithMetricsAuth(token string) Option {
	return func(s *Server) { s.metricsAuth = token }
}

// NewServer constructs the HTTP glue. jwksURL is the JWKS document used to
// verify bearer tokens on subscribe/unsubscribe.
func NewServer(pub *pikav.Publisher, jwksURL string, opts ...Option) *Server {
	s := &Server{pub: pub, jwks: NewJWKSClient(jwksURL)}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/subscribe/", instrument("subscribe", s.handleSubscribe))
	mux.HandleFunc("/unsubscribe/", instrument("unsubscribe", s.handleUnsubscribe))
	mux.HandleFunc("/events", instrument("events", s.handleEvents))
	mux.Handle("/metrics", metricsHandler(s.metricsAuth))
	s.mux = mux

	return s
}

// Handler returns the fully wrapped http.Handler: access logging
// (gorilla/handlers) around HTTP/2-cleartext-capable routing (h2c).
func (s *Server) Handler() http.Handler {
	h2s := &http2.Server{}
	return handlers.CombinedLoggingHandler(log.Logger, h2c.NewHandler(s.mux, h2s))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"code": status, "message": message})
}

func pathFilter(prefix string, r *http.Request) (string, error) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" {
		return "", http.ErrMissingFile
	}
	return url.PathUnescape(raw)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.handleSubOrUnsub(w, r, "/subscribe/", s.pub.SubscribeString, func(p *cluster.Peer, filter, userID, cid string) error {
		return p.Subscribe(filter, userID, cid)
	})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.handleSubOrUnsub(w, r, "/unsubscribe/", s.pub.UnsubscribeString, func(p *cluster.Peer, filter, userID, cid string) error {
		return p.Unsubscribe(filter, userID, cid)
	})
}

func (s *Server) handleSubOrUnsub(
	w http.ResponseWriter,
	r *http.Request,
	prefix string,
	local func(filter, userID, clientID string) error,
	remote func(p *cluster.Peer, filter, userID, clientID string) error,
) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := authenticate(r, s.jwks)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cid, err := clientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter, err := pathFilter(prefix, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing filter")
		return
	}

	if err := local(filter, userID, cid); err != nil {
		status := http.StatusInternalServerError
		switch {
		case isNotFound(err):
			status = http.StatusNotFound
		case isInvalidFilter(err):
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	// Same-region propagation goes out over cluster RPC (spec §4.5), and the
	// RPC receiver's Subscribe/Unsubscribe call the local Publisher directly
	// without fanning out to its own peers, so one hop is all this ever
	// takes: no cycle-guard is needed here.
	for _, p := range s.peers {
		if !p.SameRegion() {
			continue
		}
		if err := remote(p, filter, userID, cid); err != nil {
			log.Error().Err(err).Str("peer", p.Address()).Msg("pikav/api: same-region propagation failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func isNotFound(err error) bool {
	return err == pikav.ErrSessionNotFound
}

func isInvalidFilter(err error) bool {
	return err != nil && err != pikav.ErrSessionNotFound && err != pikav.ErrUnauthorized && err != pikav.ErrInternal
}

// handleEvents implements GET /events: creates a session and streams its
// queue as text/event-stream, writing each received frame verbatim (spec
// §4.6).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	_, recv, err := s.pub.CreateSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-recv:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ListenAndServe serves the HTTP glue on addr until ctx is cancelled,
// performing a graceful shutdown (see cmd/pikavd/serve.go for the
// signal-driven caller).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived.
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
