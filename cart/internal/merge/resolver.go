package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/otel"
)

const maxAttempts = 3

// Result is what the store is re-seeded with. Pending means the anonymous
// cart was not folded in yet and the merge has to run again later; the
// anonymous cart is kept untouched in that case.
type Result struct {
	Lines     []model.Line
	Version   uint64
	Degraded  bool
	Pending   bool
	Cause     error
	Anomalies []cartErrors.MergeAnomaly
}

type Resolver struct {
	persistence persistence.Store
}

func NewResolver(p persistence.Store) Resolver {
	return Resolver{persistence: p}
}

// Run executes one anonymous to user transition. It only returns an error for
// invalid owners; storage failures fail open into a degraded, pending Result.
func (r Resolver) Run(c context.Context, anonymous model.Owner, user model.Owner) (Result, error) {
	c, span := cartOtel.Tracer.Start(c, "Resolver Run")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Resolver Run").
		Stringer(constants.KEY_OWNER, user).
		Logger()

	if !anonymous.IsAnonymous() || !user.IsUser() {
		err := cartErrors.ValidationError{Field: "owner", Reason: "merge needs an anonymous and a user owner"}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Result{}, err
	}
	for _, o := range []model.Owner{anonymous, user} {
		if err := o.Validate(); err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return Result{}, cartErrors.ValidationError{Field: "owner", Reason: err.Error()}
		}
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "loading anonymous cart").Logger()
	logger.Info().Msg("loading anonymous cart")
	anonLoaded, err := r.persistence.Load(logger.WithContext(c), anonymous)
	if err != nil {
		err = fmt.Errorf("failed loading anonymous cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg("treating anonymous cart as empty")
		anonLoaded = persistence.Loaded{}
	}
	anonLines := r.normalize(logger, anonLoaded.Lines)
	logger.Info().Int(constants.KEY_CART_LINES, len(anonLines)).Msg("loaded anonymous cart")

	result := Result{
		Degraded: true,
		Pending:  true,
		Cause:    fmt.Errorf("failed merging carts with error=%w", cartErrors.ErrSuperseded),
	}
	settled := false
	for attempt := 1; attempt <= maxAttempts && !settled; attempt++ {
		res, retry := r.attempt(logger.WithContext(c), anonymous, user, anonLines)
		if retry {
			logger.Warn().Int("attempt", attempt).Msg("durable cart changed during merge, retrying")
			continue
		}
		result, settled = res, true
	}
	if !settled {
		metric.Merges.WithLabelValues(metric.OutcomeSuperseded).Inc()
	}
	if result.Cause != nil {
		otel.RecordError(result.Cause, span)
	}
	return result, nil
}

func (r Resolver) attempt(
	c context.Context,
	anonymous model.Owner,
	user model.Owner,
	anonLines []model.Line,
) (Result, bool) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_PROCESS, "loading durable cart").
		Logger()

	logger.Info().Msg("loading durable cart")
	durableLoaded, err := r.persistence.Load(c, user)
	if err != nil {
		err = fmt.Errorf("failed loading durable cart with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		metric.Merges.WithLabelValues(metric.OutcomeDegraded).Inc()
		return Result{Degraded: true, Pending: len(anonLines) > 0, Cause: err}, false
	}
	durableLines := r.normalize(logger, durableLoaded.Lines)
	logger = logger.With().Uint64(constants.KEY_CART_VERSION, durableLoaded.Version).Logger()
	logger.Info().Int(constants.KEY_CART_LINES, len(durableLines)).Msg("loaded durable cart")

	if len(anonLines) == 0 {
		logger.Info().Msg("anonymous cart empty, skipping merge")
		metric.Merges.WithLabelValues(metric.OutcomeSkipped).Inc()
		lines, _ := model.Collapse(durableLines)
		return Result{Lines: lines, Version: durableLoaded.Version}, false
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "merging carts").Logger()
	logger.Info().Msg("merging carts")
	merged, anomalies := Merge(anonLines, durableLines)
	for _, a := range anomalies {
		metric.MergeAnomalies.WithLabelValues(string(a.Side)).Inc()
		logger.Warn().Err(a).Msg(a.Error())
	}
	logger.Info().Int(constants.KEY_CART_LINES, len(merged)).Msg("merged carts")

	version := durableLoaded.Version + 1
	logger = logger.With().
		Str(constants.KEY_PROCESS, "replacing durable cart").
		Uint64(constants.KEY_CART_VERSION, version).
		Logger()
	logger.Info().Msg("replacing durable cart")
	err = r.persistence.Replace(c, user, model.Payloads(merged), version)
	if errors.Is(err, cartErrors.ErrSuperseded) {
		return Result{}, true
	}
	if err != nil {
		err = fmt.Errorf("failed replacing durable cart with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		metric.Merges.WithLabelValues(metric.OutcomeFailure).Inc()
		return Result{
			Lines:    durableLines,
			Version:  durableLoaded.Version,
			Degraded: true,
			Pending:  true,
			Cause:    err,
		}, false
	}
	logger.Info().Msg("replaced durable cart")

	logger = logger.With().Str(constants.KEY_PROCESS, "clearing anonymous cart").Logger()
	logger.Info().Msg("clearing anonymous cart")
	if err = r.persistence.Clear(c, anonymous); err != nil {
		err = fmt.Errorf("failed clearing anonymous cart with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		if err = r.persistence.Replace(c, anonymous, []model.Payload{}, 0); err != nil {
			err = fmt.Errorf("failed emptying anonymous cart with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	} else {
		logger.Info().Msg("cleared anonymous cart")
	}

	metric.Merges.WithLabelValues(metric.OutcomeSuccess).Inc()
	return Result{Lines: merged, Version: version, Anomalies: anomalies}, false
}

func (r Resolver) normalize(logger zerolog.Logger, payloads []model.Payload) []model.Line {
	lines := make([]model.Line, 0, len(payloads))
	for _, p := range payloads {
		line, err := p.Line()
		if err != nil {
			logger.Warn().Err(err).Msg(err.Error())
			if !errors.Is(err, cartErrors.ErrAmbiguousLine) {
				continue
			}
		}
		lines = append(lines, line)
	}
	return lines
}
