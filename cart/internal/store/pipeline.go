package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

// Result is delivered once on a mutation's channel when its background write
// completes. Err is nil on success and set when the mutation was rolled back.
type Result struct {
	Mutation string
	Version  uint64
	Err      error
}

// applyFunc computes S1 from a private copy of S0. It must not keep s0.
type applyFunc func(s0 []model.Line) (s1 []model.Line, events []Event, err error)

type pendingWrite struct {
	mutation string
	owner    model.Owner
	s0       []model.Line
	s1       []model.Line
	version  uint64
	epoch    uint64
	link     trace.Link
	result   chan Result
	// err holds the rejection of a deferred write until it is resolved.
	err error
}

// mutate runs the synchronous half of the pipeline under the lock and hands
// the write to a goroutine.
func (s *Store) mutate(c context.Context, mutation string, apply applyFunc) (<-chan Result, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_MUTATION, mutation).
		Logger()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metric.Mutations.WithLabelValues(mutation, metric.OutcomeRejected).Inc()
		logger.Warn().Err(cartErrors.ErrSessionClosed).Msg("rejected mutation on closed cart")
		return nil, cartErrors.ErrSessionClosed
	}
	if !s.state.acceptsMutations() {
		state := s.state
		s.mu.Unlock()
		err := fmt.Errorf("%w: state=%s", cartErrors.ErrNotReady, state)
		metric.Mutations.WithLabelValues(mutation, metric.OutcomeRejected).Inc()
		logger.Warn().Err(err).Msg(err.Error())
		return nil, err
	}

	s0 := s.lines
	s1, events, err := apply(model.Clone(s0))
	if err != nil {
		s.mu.Unlock()
		metric.Mutations.WithLabelValues(mutation, metric.OutcomeRejected).Inc()
		logger.Warn().Err(err).Msg(err.Error())
		return nil, err
	}

	s.version++
	w := &pendingWrite{
		mutation: mutation,
		owner:    s.owner,
		s0:       s0,
		s1:       s1,
		version:  s.version,
		epoch:    s.epoch,
		link:     trace.LinkFromContext(c),
		result:   make(chan Result, 1),
	}
	s.lines = s1
	s.state = Mutating
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.inflight[w] = struct{}{}
	metric.PersistInFlight.Inc()
	events = append(events, s.changedLocked(false, nil))
	listeners := s.listenersLocked()
	s.mu.Unlock()

	logger.Info().
		Uint64(constants.KEY_SEQUENCE, w.version).
		Int(constants.KEY_CART_LINES, len(s1)).
		Msg("applied mutation")
	s.emit(logger, listeners, events...)

	go s.persist(context.WithoutCancel(c), w)
	return w.result, nil
}

// persist is the asynchronous half: replace, then settle or roll back.
func (s *Store) persist(c context.Context, w *pendingWrite) {
	c, span := cartOtel.Tracer.Start(
		c,
		"Store persist",
		trace.WithNewRoot(),
		trace.WithLinks(w.link),
	)
	defer span.End()

	base := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Store persist").
		Stringer(constants.KEY_OWNER, w.owner).
		Str(constants.KEY_PROCESS, "replacing cart").
		Logger()
	logger := base.With().
		Str(constants.KEY_MUTATION, w.mutation).
		Uint64(constants.KEY_SEQUENCE, w.version).
		Logger()

	if s.persistTimeout > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, s.persistTimeout)
		defer cancel()
	}

	logger.Info().Msg("replacing cart")
	start := time.Now()
	err := s.persister.Replace(logger.WithContext(c), w.owner, model.Payloads(w.s1), w.version)
	elapsed := time.Since(start).Seconds()

	s.mu.Lock()
	s.pending--
	delete(s.inflight, w)
	metric.PersistInFlight.Dec()
	if s.pending == 0 {
		close(s.idle)
	}

	settled, events, outcome := s.settleLocked(w, err)
	if s.state == Mutating && s.pending == 0 {
		s.state = Ready
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	metric.PersistDuration.WithLabelValues(w.owner.Kind.String(), outcome).Observe(elapsed)
	if outcome == metric.OutcomeDeferred {
		logger.Info().Msg("superseded while a newer write is in flight, deferring outcome")
	}
	if err != nil && outcome != metric.OutcomeDeferred {
		otel.RecordError(err, span)
	}
	if rolledBack(events) {
		metric.Rollbacks.WithLabelValues(w.mutation).Inc()
		logger.Warn().Msg("rolled back mutation")
	}
	s.emit(logger, listeners, events...)

	for _, st := range settled {
		deliver(base, st)
	}
}

type settlement struct {
	w       *pendingWrite
	outcome string
	err     error
}

// settleLocked decides the outcome of w and of every deferred write that w
// resolves. A superseded write is only absorbed once a newer write of the same
// epoch reached storage; while one is still in flight the decision waits.
func (s *Store) settleLocked(w *pendingWrite, err error) ([]settlement, []Event, string) {
	switch {
	case err == nil:
		if w.epoch == s.epoch && w.version > s.acked {
			s.acked = w.version
		}
		settled := []settlement{{w: w, outcome: metric.OutcomeSuccess}}
		for _, d := range s.takeDeferredLocked(w) {
			settled = append(settled, settlement{w: d, outcome: metric.OutcomeSuperseded})
		}
		return settled, []Event{Persisted{Mutation: w.mutation, Owner: w.owner, Version: w.version}}, metric.OutcomeSuccess
	case isSuperseded(err) && w.epoch == s.epoch && s.acked > w.version:
		return []settlement{{w: w, outcome: metric.OutcomeSuperseded}}, nil, metric.OutcomeSuperseded
	case isSuperseded(err) && s.newerInFlightLocked(w):
		w.err = err
		s.deferred = append(s.deferred, w)
		return nil, nil, metric.OutcomeDeferred
	}

	w.err = err
	failed := append(s.takeDeferredLocked(w), w)
	settled := make([]settlement, 0, len(failed))
	earliest := w
	for _, f := range failed {
		settled = append(settled, settlement{w: f, outcome: metric.OutcomeFailure, err: f.err})
		if f.version < earliest.version {
			earliest = f
		}
	}
	if w.epoch != s.epoch {
		// The identity changed or the cart was reloaded meanwhile; there is
		// nothing left to roll back on screen.
		return settled, nil, metric.OutcomeFailure
	}
	s.lines = earliest.s0
	s.lastErr = err
	return settled, []Event{s.changedLocked(true, err)}, metric.OutcomeFailure
}

func (s *Store) newerInFlightLocked(w *pendingWrite) bool {
	for p := range s.inflight {
		if p.epoch == w.epoch && p.version > w.version {
			return true
		}
	}
	return false
}

// takeDeferredLocked removes and returns the deferred writes older than w in
// its epoch.
func (s *Store) takeDeferredLocked(w *pendingWrite) []*pendingWrite {
	var taken []*pendingWrite
	kept := s.deferred[:0]
	for _, d := range s.deferred {
		if d.epoch == w.epoch && d.version < w.version {
			taken = append(taken, d)
			continue
		}
		kept = append(kept, d)
	}
	s.deferred = kept
	return taken
}

func deliver(logger zerolog.Logger, st settlement) {
	w := st.w
	logger = logger.With().
		Str(constants.KEY_MUTATION, w.mutation).
		Uint64(constants.KEY_SEQUENCE, w.version).
		Logger()

	metric.Mutations.WithLabelValues(w.mutation, st.outcome).Inc()
	err := st.err
	if err != nil {
		err = fmt.Errorf("failed persisting %s with error=%w", w.mutation, err)
		logger.Error().Err(err).Msg(err.Error())
	} else {
		logger.Info().Str("outcome", st.outcome).Msg("replaced cart")
	}
	w.result <- Result{Mutation: w.mutation, Version: w.version, Err: err}
	close(w.result)
}

func rolledBack(events []Event) bool {
	for _, e := range events {
		if c, ok := e.(Changed); ok && c.RolledBack {
			return true
		}
	}
	return false
}
