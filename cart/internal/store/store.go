// Package store holds one owner's cart and runs every mutation through the
// optimistic pipeline: apply in memory, notify, persist in the background and
// roll back when the write fails.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/catalog"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

type Option func(*Store)

// WithPersistTimeout bounds every background write. Zero means no timeout.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) { s.persistTimeout = d }
}

type Store struct {
	persister      persistence.Persister
	catalog        catalog.Catalog
	persistTimeout time.Duration

	mu       sync.Mutex
	owner    model.Owner
	state    State
	lines    []model.Line
	degraded bool
	closed   bool
	lastErr  error
	// version is the last sequence token issued or loaded.
	version uint64
	// acked is the highest version of the current epoch that reached storage.
	acked    uint64
	inflight map[*pendingWrite]struct{}
	deferred []*pendingWrite
	// epoch changes with every identity change or reload; completions from an
	// older epoch never touch the visible lines.
	epoch    uint64
	revision uint64
	pending  int
	idle     chan struct{}

	listeners      map[uint64]Listener
	nextListenerID uint64
}

func New(p persistence.Persister, cat catalog.Catalog, opts ...Option) *Store {
	idle := make(chan struct{})
	close(idle)
	s := &Store{
		persister: p,
		catalog:   cat,
		state:     Uninitialized,
		lines:     []model.Line{},
		idle:      idle,
		inflight:  map[*pendingWrite]struct{}{},
		listeners: map[uint64]Listener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the owner's cart. A load failure leaves the store Ready, empty
// and degraded; only an invalid owner returns an error and moves to Error.
func (s *Store) Init(c context.Context, owner model.Owner) error {
	c, span := cartOtel.Tracer.Start(c, "Store Init")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Store Init").
		Stringer(constants.KEY_OWNER, owner).
		Logger()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cartErrors.ErrSessionClosed
	}
	if err := owner.Validate(); err != nil {
		err = cartErrors.ValidationError{Field: "owner", Reason: err.Error()}
		s.state = Error
		s.lastErr = err
		s.mu.Unlock()
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	s.owner = owner
	s.state = Loading
	s.epoch++
	s.acked = 0
	epoch := s.epoch
	s.mu.Unlock()

	return s.load(logger.WithContext(c), owner, epoch)
}

// Reload re-reads the current owner's cart once in-flight writes settled.
func (s *Store) Reload(c context.Context) error {
	c, span := cartOtel.Tracer.Start(c, "Store Reload")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(constants.KEY_TAG, "Store Reload").Logger()

	if err := s.Wait(c); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cartErrors.ErrSessionClosed
	}
	if s.state == Uninitialized || s.state == Error {
		s.mu.Unlock()
		return cartErrors.ErrNotReady
	}
	owner := s.owner
	s.state = Loading
	s.epoch++
	s.acked = 0
	epoch := s.epoch
	s.mu.Unlock()

	return s.load(logger.WithContext(c), owner, epoch)
}

func (s *Store) load(c context.Context, owner model.Owner, epoch uint64) error {
	logger := zerolog.Ctx(c).
		With().
		Stringer(constants.KEY_OWNER, owner).
		Str(constants.KEY_PROCESS, "loading cart").
		Logger()

	logger.Info().Msg("loading cart")
	loaded, err := s.persister.Load(c, owner)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		logger.Info().Msg("identity changed while loading, discarding result")
		return nil
	}
	if err != nil {
		s.lines = []model.Line{}
		s.degraded = true
		s.lastErr = err
		metric.Loads.WithLabelValues(owner.Kind.String(), metric.OutcomeDegraded).Inc()
		logger.Error().Err(err).Msg("failed loading cart, starting empty")
	} else {
		lines, errs := model.Lines(loaded.Lines)
		for _, e := range errs {
			logger.Warn().Err(e).Msg(e.Error())
		}
		s.lines = lines
		s.version = loaded.Version
		s.degraded = false
		s.lastErr = nil
		metric.Loads.WithLabelValues(owner.Kind.String(), metric.OutcomeSuccess).Inc()
		logger.Info().
			Int(constants.KEY_CART_LINES, len(lines)).
			Uint64(constants.KEY_CART_VERSION, loaded.Version).
			Msg("loaded cart")
	}
	s.state = s.settledStateLocked()
	changed := s.changedLocked(false, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.emit(logger, listeners, changed)
	return nil
}

// Reseed replaces owner and lines in one step, as after a merge.
func (s *Store) Reseed(c context.Context, owner model.Owner, lines []model.Line, version uint64, degraded bool) error {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Store Reseed").
		Stringer(constants.KEY_OWNER, owner).
		Uint64(constants.KEY_CART_VERSION, version).
		Bool("degraded", degraded).
		Logger()

	if err := owner.Validate(); err != nil {
		err = cartErrors.ValidationError{Field: "owner", Reason: err.Error()}
		s.mu.Lock()
		s.state = Error
		s.lastErr = err
		s.mu.Unlock()
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	collapsed, _ := model.Collapse(model.Clone(lines))
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cartErrors.ErrSessionClosed
	}
	s.owner = owner
	s.lines = collapsed
	s.version = version
	s.degraded = degraded
	s.lastErr = nil
	s.epoch++
	s.acked = 0
	s.state = s.settledStateLocked()
	changed := s.changedLocked(false, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	logger.Info().Int(constants.KEY_CART_LINES, len(collapsed)).Msg("reseeded cart")
	s.emit(logger, listeners, changed)
	return nil
}

// Wait blocks until every background write issued so far has completed.
func (s *Store) Wait(c context.Context) error {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-c.Done():
			return c.Err()
		}
	}
}

// Close rejects every later mutation, reload and identity change. Writes
// already in flight still settle.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) settledStateLocked() State {
	if s.pending > 0 {
		return Mutating
	}
	return Ready
}

func (s *Store) Lines() []model.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Clone(s.lines)
}

func (s *Store) Totals() model.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Sum(s.lines)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) Owner() model.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func isSuperseded(err error) bool {
	return errors.Is(err, cartErrors.ErrSuperseded)
}
