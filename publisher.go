package pikav

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/timayz/pikav/topic"
)

// reaperInterval is the stale-session sweep cadence (spec §4.3).
const reaperInterval = 10 * time.Second

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pikav",
		Name:      "active_sessions",
		Help:      "Number of live SSE sessions held by the publisher.",
	})
	metricDeliveredFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pikav",
		Name:      "delivered_frames_total",
		Help:      "Number of SSE frames successfully enqueued to a session queue.",
	})
	metricStaleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pikav",
		Name:      "stale_sessions_evicted_total",
		Help:      "Number of sessions removed by the stale-session reaper.",
	})
)

// Publisher is the central registry and dispatcher: it owns the sessions
// and user_sessions indexes and exposes CreateSession, Subscribe,
// Unsubscribe, Publish, and a background stale-reaper (spec §4.3).
//
// The top-level maps are guarded by a single RWMutex; per-session user id
// and filters are guarded independently inside Session so that delivery
// never contends with subscribe/unsubscribe bookkeeping on unrelated
// sessions (spec §5, §9 "Concurrency style").
type Publisher struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	userSessions map[string]map[string]struct{}

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewPublisher constructs an empty Publisher. Call Start to launch the
// background stale-reaper.
func NewPublisher() *Publisher {
	return &Publisher{
		sessions:     make(map[string]*Session),
		userSessions: make(map[string]map[string]struct{}),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start launches the background stale-session reaper. It returns
// immediately; the reaper runs until Stop is called.
func (p *Publisher) Start() {
	go p.reaperLoop()
}

// Stop halts the background reaper and waits for it to exit.
func (p *Publisher) Stop() {
	p.once.Do(func() {
		close(p.stop)
	})
	<-p.stopped
}

// CreateSession generates a fresh session, enqueues the bootstrap
// "$SYS/session Created" frame, and registers it. It returns the session
// and the receive half of its queue, for the HTTP glue to stream as SSE.
func (p *Publisher) CreateSession() (*Session, <-chan []byte, error) {
	s, recv, err := newSession()
	if err != nil {
		return nil, nil, err
	}

	if !s.enqueueBootstrap() {
		// Should not happen with a fresh, empty queue.
		return nil, nil, ErrInternal
	}

	p.mu.Lock()
	p.sessions[s.id] = s
	p.mu.Unlock()

	metricActiveSessions.Inc()
	log.Debug().Str("session_id", s.id).Msg("pikav: session created")

	return s, recv, nil
}

// Subscribe implements spec §4.3's subscribe: binds clientID's session to
// userID (clearing filters and prior membership on rebind) and adds
// filter, updating user_sessions as needed.
func (p *Publisher) Subscribe(filter topic.Filter, userID, clientID string) error {
	p.mu.RLock()
	s, ok := p.sessions[clientID]
	p.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	rebound, previous := s.tryBindUser(userID)
	if rebound {
		p.mu.Lock()
		if set, ok := p.userSessions[previous]; ok {
			delete(set, clientID)
			if len(set) == 0 {
				delete(p.userSessions, previous)
			}
		}
		p.mu.Unlock()
	}

	if !s.addFilter(filter) {
		// Duplicate filter: success without touching user_sessions.
		return nil
	}

	p.mu.Lock()
	set, ok := p.userSessions[userID]
	if !ok {
		set = make(map[string]struct{})
		p.userSessions[userID] = set
	}
	set[clientID] = struct{}{}
	p.mu.Unlock()

	return nil
}

// Unsubscribe implements spec §4.3's unsubscribe.
func (p *Publisher) Unsubscribe(filter topic.Filter, userID, clientID string) error {
	p.mu.RLock()
	s, ok := p.sessions[clientID]
	p.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	if !s.removeFilter(filter) {
		// Session still has filters remaining: success, no index change.
		return nil
	}

	p.mu.Lock()
	if set, ok := p.userSessions[userID]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(p.userSessions, userID)
		}
	}
	p.mu.Unlock()

	return nil
}

// SubscribeString parses rawFilter and calls Subscribe, for callers (HTTP
// glue, cluster RPC) that only hold the filter as a wire string.
func (p *Publisher) SubscribeString(rawFilter, userID, clientID string) error {
	f, err := topic.NewFilter(rawFilter)
	if err != nil {
		return err
	}
	return p.Subscribe(f, userID, clientID)
}

// UnsubscribeString parses rawFilter and calls Unsubscribe.
func (p *Publisher) UnsubscribeString(rawFilter, userID, clientID string) error {
	f, err := topic.NewFilter(rawFilter)
	if err != nil {
		return err
	}
	return p.Unsubscribe(f, userID, clientID)
}

// Publish delivers each message to every live session belonging to its
// target user whose filters match the event's topic. Delivery failures do
// not halt iteration; ordering across distinct messages' matching sessions
// is preserved only per-message, per spec §4.3/§5.
func (p *Publisher) Publish(messages []Message) {
	for _, m := range messages {
		p.mu.RLock()
		set, ok := p.userSessions[m.UserID]
		if !ok {
			p.mu.RUnlock()
			continue
		}
		sessionIDs := make([]string, 0, len(set))
		for id := range set {
			sessionIDs = append(sessionIDs, id)
		}
		sessions := make([]*Session, 0, len(sessionIDs))
		for _, id := range sessionIDs {
			if s, ok := p.sessions[id]; ok {
				sessions = append(sessions, s)
			}
		}
		p.mu.RUnlock()

		for _, s := range sessions {
			s.deliver(m.Event)
			metricDeliveredFrames.Inc()
		}
	}
}

// reaperLoop wakes every reaperInterval and probes every session with a
// non-blocking ping; probing doubles as a liveness signal to healthy
// sessions. Sessions whose probe fails are collected and removed in a
// separate write phase so the probe pass never holds a write lease (spec
// §4.3, §5).
func (p *Publisher) reaperLoop() {
	defer close(p.stopped)

	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *Publisher) reapOnce() {
	p.mu.RLock()
	stale := make([]string, 0)
	for id, s := range p.sessions {
		if s.isStale() {
			stale = append(stale, id)
		}
	}
	p.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	p.mu.Lock()
	for _, id := range stale {
		s, ok := p.sessions[id]
		if !ok {
			continue
		}
		delete(p.sessions, id)
		if userID, has := s.UserID(); has {
			if set, ok := p.userSessions[userID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(p.userSessions, userID)
				}
			}
		}
	}
	p.mu.Unlock()

	metricActiveSessions.Sub(float64(len(stale)))
	metricStaleEvictions.Add(float64(len(stale)))
	log.Debug().Int("count", len(stale)).Msg("pikav: reaped stale sessions")
}
