package store

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/model"
	"github.com/Alturino/storefront/internal/constants"
)

// Event is one of LineAdded, Changed or Persisted.
type Event interface {
	isEvent()
}

// LineAdded fires when a mutation appends a new line, not when it increments
// an existing one.
type LineAdded struct {
	Line model.Line
}

// Changed fires after every visible state change. Revision grows with every
// notification so listeners can drop events delivered out of order.
type Changed struct {
	Revision   uint64
	Owner      model.Owner
	Lines      []model.Line
	Totals     model.Totals
	RolledBack bool
	Err        error
}

// Persisted fires once a mutation's write reached the backend.
type Persisted struct {
	Mutation string
	Owner    model.Owner
	Version  uint64
}

func (LineAdded) isEvent() {}
func (Changed) isEvent()   {}
func (Persisted) isEvent() {}

type Listener func(Event)

// Subscribe registers fn and returns a func that removes it. Listeners run on
// the goroutine that caused the event and must not block.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListenerID++
	id := s.nextListenerID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// changedLocked builds a Changed event from the current state. Callers hold mu.
func (s *Store) changedLocked(rolledBack bool, err error) Changed {
	s.revision++
	return Changed{
		Revision:   s.revision,
		Owner:      s.owner,
		Lines:      model.Clone(s.lines),
		Totals:     model.Sum(s.lines),
		RolledBack: rolledBack,
		Err:        err,
	}
}

func (s *Store) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func (s *Store) emit(logger zerolog.Logger, listeners []Listener, events ...Event) {
	for _, e := range events {
		for _, l := range listeners {
			s.dispatch(logger, l, e)
		}
	}
}

func (s *Store) dispatch(logger zerolog.Logger, l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("cart listener panicked with value=%v", r)
			logger.Error().
				Str(constants.KEY_PROCESS, "notifying listeners").
				Err(err).
				Msg(err.Error())
		}
	}()
	l(e)
}
