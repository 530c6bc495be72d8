// Package session owns one cart store per visitor session and drives the
// identity transitions around it.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/broadcast"
	"github.com/Alturino/storefront/cart/internal/catalog"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/merge"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/cart/internal/store"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

type Deps struct {
	Persistence persistence.Store
	Catalog     catalog.Catalog
	// Publisher is optional; without it writes are not broadcast.
	Publisher    broadcast.Publisher
	StoreOptions []store.Option
}

type Session struct {
	ID        uuid.UUID
	store     *store.Store
	resolver  merge.Resolver
	publisher broadcast.Publisher
	// background carries the logger for publishes that outlive a request.
	background context.Context

	// transition serializes Login, Logout, Reload and Close.
	transition sync.Mutex

	mu           sync.Mutex
	anonymous    model.Owner
	mergePending bool
	closed       bool
	reloading    bool
	reloadAgain  bool
	lastSeen     time.Time
	unsubscribe  func()
}

// Open starts a session on the anonymous cart of token.
func Open(c context.Context, token string, deps Deps) (*Session, error) {
	c, span := cartOtel.Tracer.Start(c, "session Open")
	defer span.End()

	id := uuid.New()
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "session Open").
		Str(constants.KEY_SESSION_ID, id.String()).
		Logger()

	owner := model.Anonymous(token)
	if err := owner.Validate(); err != nil {
		err = cartErrors.ValidationError{Field: "token", Reason: err.Error()}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	s := &Session{
		ID:         id,
		store:      store.New(deps.Persistence, deps.Catalog, deps.StoreOptions...),
		resolver:   merge.NewResolver(deps.Persistence),
		publisher:  deps.Publisher,
		background: logger.WithContext(context.WithoutCancel(c)),
		anonymous:  owner,
		lastSeen:   time.Now(),
	}
	s.unsubscribe = s.store.Subscribe(s.onEvent)

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing cart").Logger()
	logger.Info().Msg("initializing cart")
	if err := s.store.Init(logger.WithContext(c), owner); err != nil {
		s.unsubscribe()
		err = fmt.Errorf("failed initializing cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("initialized cart")
	return s, nil
}

func (s *Session) Store() *store.Store {
	return s.store
}

// MergePending reports whether the anonymous cart still waits to be folded
// into the user's cart.
func (s *Session) MergePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergePending
}

// Channel is the broadcast channel of the session's current owner.
func (s *Session) Channel() string {
	return broadcast.Channel(s.store.Owner())
}

// Login switches the session to userID, folding the anonymous cart into the
// user's durable cart once. Logging in again as the same user is a no-op.
func (s *Session) Login(c context.Context, userID uuid.UUID) (merge.Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Session Login")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Session Login").
		Str(constants.KEY_SESSION_ID, s.ID.String()).
		Str(constants.KEY_USER_ID, userID.String()).
		Logger()

	s.transition.Lock()
	defer s.transition.Unlock()

	if err := s.checkOpen(); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return merge.Result{}, err
	}

	user := model.User(userID)
	if err := user.Validate(); err != nil {
		err = cartErrors.ValidationError{Field: "userId", Reason: err.Error()}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return merge.Result{}, err
	}

	current := s.store.Owner()
	if current.IsUser() {
		if current.UserID == userID {
			logger.Info().Msg("already logged in, skipping merge")
			return merge.Result{
				Lines:    s.store.Lines(),
				Version:  s.store.Version(),
				Degraded: s.store.Degraded(),
				Pending:  s.MergePending(),
			}, nil
		}
		err := fmt.Errorf("%w: session belongs to another user", cartErrors.ErrWrongOwner)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return merge.Result{}, err
	}

	return s.merge(logger.WithContext(c), user)
}

// merge settles the anonymous writes, runs the resolver and re-seeds the
// store with its outcome. Callers hold transition.
func (s *Session) merge(c context.Context, user model.Owner) (merge.Result, error) {
	logger := zerolog.Ctx(c).With().Str(constants.KEY_PROCESS, "merging carts").Logger()

	logger.Info().Msg("waiting for in-flight writes")
	if err := s.store.Wait(c); err != nil {
		err = fmt.Errorf("failed waiting for in-flight writes with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return merge.Result{}, err
	}

	s.mu.Lock()
	anonymous := s.anonymous
	s.mu.Unlock()

	logger.Info().Msg("merging carts")
	result, err := s.resolver.Run(logger.WithContext(c), anonymous, user)
	if err != nil {
		err = fmt.Errorf("failed merging carts with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return merge.Result{}, err
	}

	if err := s.store.Reseed(logger.WithContext(c), user, result.Lines, result.Version, result.Degraded); err != nil {
		err = fmt.Errorf("failed reseeding cart with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return merge.Result{}, err
	}

	s.mu.Lock()
	s.mergePending = result.Pending
	s.mu.Unlock()

	logger.Info().
		Int(constants.KEY_CART_LINES, len(result.Lines)).
		Uint64(constants.KEY_CART_VERSION, result.Version).
		Bool("pending", result.Pending).
		Msg("merged carts")
	if !result.Pending && result.Cause == nil {
		s.publish(user, result.Version)
	}
	return result, nil
}

// Logout drops the user identity and starts over on a fresh anonymous cart
// identified by newToken.
func (s *Session) Logout(c context.Context, newToken string) error {
	c, span := cartOtel.Tracer.Start(c, "Session Logout")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Session Logout").
		Str(constants.KEY_SESSION_ID, s.ID.String()).
		Logger()

	s.transition.Lock()
	defer s.transition.Unlock()

	if err := s.checkOpen(); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	owner := model.Anonymous(newToken)
	if err := owner.Validate(); err != nil {
		err = cartErrors.ValidationError{Field: "token", Reason: err.Error()}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "waiting for in-flight writes").Logger()
	logger.Info().Msg("waiting for in-flight writes")
	if err := s.store.Wait(c); err != nil {
		err = fmt.Errorf("failed waiting for in-flight writes with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	s.mu.Lock()
	s.anonymous = owner
	s.mergePending = false
	s.mu.Unlock()

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing anonymous cart").Logger()
	logger.Info().Msg("initializing anonymous cart")
	if err := s.store.Init(logger.WithContext(c), owner); err != nil {
		err = fmt.Errorf("failed initializing anonymous cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("initialized anonymous cart")
	return nil
}

// Reload re-reads the cart, or retries a merge that did not go through.
func (s *Session) Reload(c context.Context) error {
	c, span := cartOtel.Tracer.Start(c, "Session Reload")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Session Reload").
		Str(constants.KEY_SESSION_ID, s.ID.String()).
		Logger()

	s.transition.Lock()
	defer s.transition.Unlock()

	if err := s.checkOpen(); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	owner := s.store.Owner()
	if owner.IsUser() && s.MergePending() {
		logger.Info().Msg("retrying pending merge")
		if _, err := s.merge(logger.WithContext(c), owner); err != nil {
			otel.RecordError(err, span)
			return err
		}
		return nil
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "reloading cart").Logger()
	logger.Info().Msg("reloading cart")
	if err := s.store.Reload(logger.WithContext(c)); err != nil {
		err = fmt.Errorf("failed reloading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("reloaded cart")
	return nil
}

// Close waits for in-flight writes and detaches the session from its store.
func (s *Session) Close(c context.Context) error {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Session Close").
		Str(constants.KEY_SESSION_ID, s.ID.String()).
		Logger()

	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.store.Close()
	err := s.store.Wait(c)
	s.unsubscribe()
	if err != nil {
		err = fmt.Errorf("failed waiting for in-flight writes with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("closed session")
	return nil
}

// scheduleReload reports whether the caller should run the reload loop. A
// session already reloading is asked to reload once more instead.
func (s *Session) scheduleReload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reloading {
		s.reloadAgain = true
		return false
	}
	s.reloading = true
	return true
}

// reloadDone reports whether another reload was requested meanwhile.
func (s *Session) reloadDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reloadAgain {
		s.reloadAgain = false
		return true
	}
	s.reloading = false
	return false
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cartErrors.ErrSessionClosed
	}
	return nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) onEvent(e store.Event) {
	if persisted, ok := e.(store.Persisted); ok {
		s.publish(persisted.Owner, persisted.Version)
	}
}

// publish runs off the persist goroutine; listeners must not block.
func (s *Session) publish(owner model.Owner, version uint64) {
	if s.publisher == nil {
		return
	}
	msg := broadcast.Message{Origin: s.ID, Version: version}
	go func() {
		if err := s.publisher.Publish(s.background, owner, msg); err != nil {
			logger := zerolog.Ctx(s.background)
			logger.Warn().Err(err).Msg("failed broadcasting cart change")
		}
	}()
}
