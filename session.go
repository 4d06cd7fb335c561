package pikav

import (
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/timayz/pikav/topic"
)

// sessionQueueCapacity is the bounded size of a session's outbound frame
// queue (spec §3).
const sessionQueueCapacity = 100

// Session represents one connected subscriber: an identity set at most
// once (with reset-on-rebind), a bounded outbound queue of serialized SSE
// frames, and a mutable, duplicate-free list of subscribed filters.
//
// User id and filters are guarded by an independent mutex from the
// Publisher's top-level maps, so that delivery does not contend with the
// top-level registry on the hot path (spec §5).
type Session struct {
	id string

	mu      sync.RWMutex
	userID  string
	hasUser bool
	filters []topic.Filter

	queue chan []byte
}

// newSession constructs a Session with a fresh nanoid, an empty filter
// list, and no bound user id. The returned channel is the receive half of
// the session's bounded queue, handed to the HTTP glue for SSE streaming.
func newSession() (*Session, <-chan []byte, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, nil, err
	}
	s := &Session{
		id:    id,
		queue: make(chan []byte, sessionQueueCapacity),
	}
	return s, s.queue, nil
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the bound user id and whether one has been bound yet.
func (s *Session) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.hasUser
}

// tryBindUser implements spec §4.2's try_bind_user: if the current user id
// is unset or equal to u, it is set to u and false is returned (no rebind).
// If it differs, it is overwritten, the filter list is cleared, and true is
// returned so the caller can update the publisher's user_sessions index.
func (s *Session) tryBindUser(u string) (rebound bool, previous string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasUser || s.userID == u {
		previous = s.userID
		s.userID = u
		s.hasUser = true
		return false, previous
	}

	previous = s.userID
	s.userID = u
	s.filters = s.filters[:0]
	return true, previous
}

// isStale attempts a non-blocking send of a ping frame. It returns true iff
// the send fails because the queue is full or the receiver has gone away.
func (s *Session) isStale() bool {
	select {
	case s.queue <- pingFrame:
		return false
	default:
		return true
	}
}

// addFilter returns false if f is already present (idempotent); otherwise
// appends it and returns true.
func (s *Session) addFilter(f topic.Filter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.filters {
		if existing.Equal(f) {
			return false
		}
	}
	s.filters = append(s.filters, f)
	return true
}

// removeFilter returns true iff, after removal, the filter list is empty.
// If f was not present, the list is left unmodified and its current
// emptiness is returned.
func (s *Session) removeFilter(f topic.Filter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.filters {
		if existing.Equal(f) {
			s.filters = append(s.filters[:i], s.filters[i+1:]...)
			return len(s.filters) == 0
		}
	}
	return len(s.filters) == 0
}

// FilterCount reports the number of subscribed filters.
func (s *Session) FilterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filters)
}

// deliver serializes event once and performs a single non-blocking enqueue
// carrying every filter that matched, if any did. A session receives at
// most one frame per deliver call, even when more than one subscribed
// filter matches (spec §8 scenario 2; see DESIGN.md).
func (s *Session) deliver(event Event) {
	s.mu.RLock()
	var matched []string
	for _, f := range s.filters {
		if f.Matches(event.Topic) {
			matched = append(matched, f.String())
		}
	}
	s.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	frame, err := event.frame(matched)
	if err != nil {
		return
	}

	select {
	case s.queue <- frame:
	default:
		// Queue full: the write fails silently. The reaper collects the
		// session on its next tick.
	}
}

// enqueueBootstrap attempts the initial "$SYS/session Created" frame.
// Returns false only if the queue somehow rejects the very first frame
// sent to a freshly constructed session.
func (s *Session) enqueueBootstrap() bool {
	select {
	case s.queue <- bootstrapFrame(s.id):
		return true
	default:
		return false
	}
}
