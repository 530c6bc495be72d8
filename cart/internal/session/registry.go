package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/broadcast"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/internal/constants"
)

const (
	evictInterval = time.Minute
	// reloadTimeout bounds one broadcast driven reload, including the wait for
	// the session's in-flight writes.
	reloadTimeout = 30 * time.Second
)

// Registry maps session tokens to open sessions.
type Registry struct {
	deps        Deps
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	reloads  sync.WaitGroup
}

// NewRegistry keeps sessions until they sat idle for idleTimeout. Zero keeps
// them until Close.
func NewRegistry(deps Deps, idleTimeout time.Duration) *Registry {
	return &Registry{
		deps:        deps,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    map[string]*Session{},
	}
}

// Get returns the session of token, opening it on first use.
func (r *Registry) Get(c context.Context, token string) (*Session, error) {
	if s, ok := r.Lookup(token); ok {
		return s, nil
	}

	opened, err := Open(c, token, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if s, ok := r.sessions[token]; ok {
		r.mu.Unlock()
		// lost the race against a concurrent open of the same token
		if err := opened.Close(c); err != nil {
			zerolog.Ctx(c).Warn().Err(err).Msg("failed closing duplicate session")
		}
		s.touch(r.now())
		return s, nil
	}
	r.sessions[token] = opened
	metric.Sessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return opened, nil
}

// Lookup returns the session of token without opening one.
func (r *Registry) Lookup(token string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[token]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Logout moves the session of token onto newToken with a fresh anonymous cart.
func (r *Registry) Logout(c context.Context, token string, newToken string) (*Session, error) {
	s, ok := r.Lookup(token)
	if !ok {
		return nil, fmt.Errorf("%w: no session for token", cartErrors.ErrSessionClosed)
	}
	if r.taken(newToken) {
		return nil, cartErrors.ErrTokenInUse
	}
	if err := s.Logout(c, newToken); err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.sessions, token)
	if _, ok := r.sessions[newToken]; ok {
		// another request opened newToken while the cart was switching
		metric.Sessions.Set(float64(len(r.sessions)))
		r.mu.Unlock()
		if err := s.Close(c); err != nil {
			zerolog.Ctx(c).Warn().Err(err).Msg("failed closing displaced session")
		}
		return nil, cartErrors.ErrTokenInUse
	}
	r.sessions[newToken] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) taken(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[token]
	return ok
}

// Notify reloads every other session whose owner publishes on channel and
// has not seen msg's version yet. Reloads run in the background so a session
// stuck on a slow write never holds up the relay.
func (r *Registry) Notify(c context.Context, channel string, msg broadcast.Message) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Registry Notify").
		Str(constants.KEY_PROCESS, "reloading sessions").
		Str("channel", channel).
		Uint64(constants.KEY_CART_VERSION, msg.Version).
		Logger()

	for _, s := range r.snapshot() {
		if s.ID == msg.Origin || s.Channel() != channel {
			continue
		}
		if msg.Version != 0 && msg.Version <= s.Store().Version() {
			continue
		}
		if !s.scheduleReload() {
			logger.Debug().Str(constants.KEY_SESSION_ID, s.ID.String()).Msg("session already reloading")
			continue
		}
		r.reloads.Add(1)
		go r.reload(logger.WithContext(c), s)
	}
}

func (r *Registry) reload(c context.Context, s *Session) {
	defer r.reloads.Done()

	logger := zerolog.Ctx(c).With().Str(constants.KEY_SESSION_ID, s.ID.String()).Logger()
	for again := true; again; again = s.reloadDone() {
		logger.Info().Msg("reloading session")
		rc, cancel := context.WithTimeout(logger.WithContext(c), reloadTimeout)
		err := s.Reload(rc)
		cancel()
		if err != nil && !errors.Is(err, cartErrors.ErrSessionClosed) {
			logger.Warn().Err(err).Msg("failed reloading session")
			continue
		}
		logger.Info().Msg("reloaded session")
	}
}

// Evict closes sessions idle for longer than the idle timeout and returns how
// many it closed.
func (r *Registry) Evict(c context.Context) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	idle := map[string]*Session{}
	for token, s := range r.sessions {
		if s.idleSince(now) > r.idleTimeout {
			idle[token] = s
			delete(r.sessions, token)
		}
	}
	metric.Sessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, s := range idle {
		if err := s.Close(c); err != nil {
			zerolog.Ctx(c).Warn().Err(err).Str(constants.KEY_SESSION_ID, s.ID.String()).Msg("failed closing idle session")
		}
	}
	return len(idle)
}

// StartEvictor evicts idle sessions until c is done.
func (r *Registry) StartEvictor(c context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Registry StartEvictor").
		Str(constants.KEY_PROCESS, "evicting idle sessions").
		Dur("idleTimeout", r.idleTimeout).
		Logger()

	tick := time.Tick(evictInterval)
	for {
		select {
		case <-c.Done():
			return
		case <-tick:
			if n := r.Evict(logger.WithContext(c)); n > 0 {
				logger.Info().Int("evicted", n).Msg("evicted idle sessions")
			}
		}
	}
}

// Close closes every session, waiting for their in-flight writes.
func (r *Registry) Close(c context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	metric.Sessions.Set(0)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(c); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.reloads.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-c.Done():
		errs = append(errs, fmt.Errorf("failed waiting for reloads with error=%w", c.Err()))
	}
	return errors.Join(errs...)
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
