package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/storefront/cart/internal/catalog"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/session"
	"github.com/Alturino/storefront/cart/internal/store"
	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/cart/response"
	"github.com/Alturino/storefront/internal"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/middleware"
	"github.com/Alturino/storefront/internal/otel"
)

// waitTimeout bounds how long a request with ?wait=true blocks on its write.
const waitTimeout = 10 * time.Second

type CartController struct {
	registry *session.Registry
	catalog  catalog.Catalog
	validate *validator.Validate
}

func AttachCartController(router *mux.Router, registry *session.Registry, cat catalog.Catalog, secretKey string) {
	controller := CartController{
		registry: registry,
		catalog:  cat,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	carts := router.PathPrefix("/carts").Subrouter()
	carts.HandleFunc("", controller.GetCart).Methods(http.MethodGet)
	carts.HandleFunc("", controller.Clear).Methods(http.MethodDelete)
	carts.HandleFunc("/lines", controller.AddLine).Methods(http.MethodPost)
	carts.HandleFunc("/lines/bulk", controller.AddLines).Methods(http.MethodPost)
	carts.HandleFunc("/lines", controller.SetQuantity).Methods(http.MethodPut)
	carts.HandleFunc("/lines", controller.RemoveLine).Methods(http.MethodDelete)
	carts.HandleFunc("/combos", controller.AddCombo).Methods(http.MethodPost)
	carts.HandleFunc("/checkout/complete", controller.CompleteCheckout).Methods(http.MethodPost)
	carts.HandleFunc("/reload", controller.Reload).Methods(http.MethodPost)
	carts.HandleFunc("/logout", controller.Logout).Methods(http.MethodPost)
	carts.HandleFunc("/catalog/price", controller.Price).Methods(http.MethodGet)

	authenticated := carts.PathPrefix("/login").Subrouter()
	authenticated.Use(middleware.Auth(secretKey))
	authenticated.HandleFunc("", controller.Login).Methods(http.MethodPost)
}

func statusOf(err error) int {
	var validation cartErrors.ValidationError
	switch {
	case errors.As(err, &validation),
		errors.Is(err, cartErrors.ErrInvalidLine),
		errors.Is(err, cartErrors.ErrAmbiguousLine),
		errors.Is(err, cartErrors.ErrInvalidOwner):
		return http.StatusBadRequest
	case errors.Is(err, cartErrors.ErrLineNotFound),
		errors.Is(err, cartErrors.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, cartErrors.ErrNotReady),
		errors.Is(err, cartErrors.ErrWrongOwner),
		errors.Is(err, cartErrors.ErrTokenInUse),
		errors.Is(err, cartErrors.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, cartErrors.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, cartErrors.ErrCatalogLookup):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(c context.Context, w http.ResponseWriter, header map[string]string, span trace.Span, logger zerolog.Logger, status int, err error) {
	otel.RecordError(err, span)
	logger.Error().Err(err).Msg(err.Error())
	inHttp.WriteJsonResponse(c, w, header, map[string]interface{}{
		"status":     "failed",
		"statusCode": status,
		"message":    err.Error(),
	})
}

func tokenHeader(token string) map[string]string {
	return map[string]string{constants.HEADER_SESSION_TOKEN: token}
}

// session resolves the caller's session, minting a token when the request
// carries none.
func (t CartController) session(c context.Context, r *http.Request) (*session.Session, string, error) {
	token := r.Header.Get(constants.HEADER_SESSION_TOKEN)
	if token == "" {
		token = uuid.NewString()
	}
	s, err := t.registry.Get(c, token)
	if err != nil {
		return nil, token, err
	}
	return s, token, nil
}

func (t CartController) decode(c context.Context, r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return cartErrors.ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := t.validate.StructCtx(c, into); err != nil {
		return cartErrors.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (t CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	c, span := cartOtel.Tracer.Start(r.Context(), "CartController GetCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController GetCart").
		Str(constants.KEY_PROCESS, "getting session").
		Logger()

	logger.Info().Msg("getting session")
	s, token, err := t.session(logger.WithContext(c), r)
	if err != nil {
		err = fmt.Errorf("failed getting session with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger.Info().Str(constants.KEY_SESSION_ID, s.ID.String()).Msg("got session")

	inHttp.WriteJsonResponse(c, w, tokenHeader(token), map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "found cart",
		"data": map[string]interface{}{
			"cart": response.FromSession(s),
		},
	})
}

// mutation runs one store mutation for the caller's session and answers with
// the optimistic cart. With ?wait=true it answers once the write settled.
func (t CartController) mutation(
	w http.ResponseWriter,
	r *http.Request,
	tag string,
	parse func(c context.Context) (func(c context.Context, st *store.Store) (<-chan store.Result, error), error),
) {
	c, span := cartOtel.Tracer.Start(r.Context(), tag)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, tag).
		Str(constants.KEY_PROCESS, "parsing request").
		Logger()

	logger.Info().Msg("parsing request")
	run, err := parse(logger.WithContext(c))
	if err != nil {
		err = fmt.Errorf("failed parsing request with error=%w", err)
		writeFailure(c, w, map[string]string{}, span, logger, http.StatusBadRequest, err)
		return
	}
	logger.Info().Msg("parsed request")

	logger = logger.With().Str(constants.KEY_PROCESS, "getting session").Logger()
	logger.Info().Msg("getting session")
	s, token, err := t.session(logger.WithContext(c), r)
	if err != nil {
		err = fmt.Errorf("failed getting session with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger = logger.With().Str(constants.KEY_SESSION_ID, s.ID.String()).Logger()
	logger.Info().Msg("got session")

	logger = logger.With().Str(constants.KEY_PROCESS, "applying mutation").Logger()
	logger.Info().Msg("applying mutation")
	ch, err := run(logger.WithContext(c), s.Store())
	if err != nil {
		err = fmt.Errorf("failed applying mutation with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger.Info().Msg("applied mutation")

	if r.URL.Query().Get("wait") != "true" {
		inHttp.WriteJsonResponse(c, w, tokenHeader(token), map[string]interface{}{
			"status":     "success",
			"statusCode": http.StatusAccepted,
			"message":    "applied mutation",
			"data": map[string]interface{}{
				"cart": response.FromSession(s),
			},
		})
		return
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "waiting for write").Logger()
	logger.Info().Msg("waiting for write")
	var result store.Result
	select {
	case result = <-ch:
	case <-time.After(waitTimeout):
		result.Err = context.DeadlineExceeded
	case <-c.Done():
		result.Err = c.Err()
	}
	if result.Err != nil {
		err = fmt.Errorf("failed persisting mutation with error=%w", result.Err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger.Info().Uint64(constants.KEY_SEQUENCE, result.Version).Msg("persisted mutation")

	inHttp.WriteJsonResponse(c, w, tokenHeader(token), map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "persisted mutation",
		"data": map[string]interface{}{
			"mutation": response.Mutation{
				Mutation: result.Mutation,
				Version:  result.Version,
				Cart:     response.FromSession(s),
			},
		},
	})
}

func (t CartController) AddLine(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController AddLine", func(c context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		req := request.AddLine{}
		if err := t.decode(c, r, &req); err != nil {
			return nil, err
		}
		sel, err := req.Selection.Selection()
		if err != nil {
			return nil, err
		}
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.AddLine(c, sel, req.Quantity)
		}, nil
	})
}

func (t CartController) AddLines(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController AddLines", func(c context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		req := request.AddLines{}
		if err := t.decode(c, r, &req); err != nil {
			return nil, err
		}
		sels, err := req.Parse()
		if err != nil {
			return nil, err
		}
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.AddLines(c, sels, req.Quantities)
		}, nil
	})
}

func (t CartController) AddCombo(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController AddCombo", func(c context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		req := request.AddCombo{}
		if err := t.decode(c, r, &req); err != nil {
			return nil, err
		}
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.AddCombo(c, req.ComboID, req.Quantity)
		}, nil
	})
}

func (t CartController) SetQuantity(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController SetQuantity", func(c context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		req := request.SetQuantity{}
		if err := t.decode(c, r, &req); err != nil {
			return nil, err
		}
		sel, err := req.Selection.Selection()
		if err != nil {
			return nil, err
		}
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.SetQuantity(c, sel.Key(), req.Quantity)
		}, nil
	})
}

func (t CartController) RemoveLine(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController RemoveLine", func(c context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		req := request.RemoveLine{}
		if err := t.decode(c, r, &req); err != nil {
			return nil, err
		}
		sel, err := req.Selection.Selection()
		if err != nil {
			return nil, err
		}
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.RemoveLine(c, sel.Key())
		}, nil
	})
}

func (t CartController) Clear(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController Clear", func(context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.Clear(c)
		}, nil
	})
}

func (t CartController) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	t.mutation(w, r, "CartController CompleteCheckout", func(context.Context) (func(context.Context, *store.Store) (<-chan store.Result, error), error) {
		return func(c context.Context, st *store.Store) (<-chan store.Result, error) {
			return st.CompleteCheckout(c)
		}, nil
	})
}

func (t CartController) Login(w http.ResponseWriter, r *http.Request) {
	c, span := cartOtel.Tracer.Start(r.Context(), "CartController Login")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController Login").
		Str(constants.KEY_PROCESS, "getting userId from jwtToken").
		Logger()

	logger.Info().Msg("getting userId from jwtToken")
	userID, err := internal.UserIdFromJwtToken(c)
	if err != nil {
		err = fmt.Errorf("failed getting userId from jwtToken with error=%w", err)
		writeFailure(c, w, map[string]string{}, span, logger, http.StatusUnauthorized, err)
		return
	}
	logger = logger.With().Str(constants.KEY_USER_ID, userID.String()).Logger()
	logger.Info().Msg("got userId from jwtToken")

	token := r.Header.Get(constants.HEADER_SESSION_TOKEN)
	if token == "" {
		err = fmt.Errorf("failed logging in with error=%w", inErrors.ErrMissingSessionID)
		writeFailure(c, w, map[string]string{}, span, logger, http.StatusBadRequest, err)
		return
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "getting session").Logger()
	logger.Info().Msg("getting session")
	s, err := t.registry.Get(logger.WithContext(c), token)
	if err != nil {
		err = fmt.Errorf("failed getting session with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger = logger.With().Str(constants.KEY_SESSION_ID, s.ID.String()).Logger()
	logger.Info().Msg("got session")

	logger = logger.With().Str(constants.KEY_PROCESS, "logging in").Logger()
	logger.Info().Msg("logging in")
	result, err := s.Login(logger.WithContext(c), userID)
	if err != nil {
		err = fmt.Errorf("failed logging in with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger.Info().Bool("pending", result.Pending).Msg("logged in")

	message := "merged carts"
	if result.Pending {
		message = "logged in, cart merge pending"
	}
	inHttp.WriteJsonResponse(c, w, tokenHeader(token), map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    message,
		"data": map[string]interface{}{
			"cart":      response.FromSession(s),
			"anomalies": len(result.Anomalies),
		},
	})
}

func (t CartController) Logout(w http.ResponseWriter, r *http.Request) {
	c, span := cartOtel.Tracer.Start(r.Context(), "CartController Logout")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController Logout").
		Str(constants.KEY_PROCESS, "logging out").
		Logger()

	token := r.Header.Get(constants.HEADER_SESSION_TOKEN)
	if token == "" {
		err := fmt.Errorf("failed logging out with error=%w", inErrors.ErrMissingSessionID)
		writeFailure(c, w, map[string]string{}, span, logger, http.StatusBadRequest, err)
		return
	}

	logger.Info().Msg("logging out")
	newToken := uuid.NewString()
	s, err := t.registry.Logout(logger.WithContext(c), token, newToken)
	if err != nil {
		err = fmt.Errorf("failed logging out with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger.Info().Str(constants.KEY_SESSION_ID, s.ID.String()).Msg("logged out")

	inHttp.WriteJsonResponse(c, w, tokenHeader(newToken), map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "logged out",
		"data": map[string]interface{}{
			"cart": response.FromSession(s),
		},
	})
}

func (t CartController) Reload(w http.ResponseWriter, r *http.Request) {
	c, span := cartOtel.Tracer.Start(r.Context(), "CartController Reload")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController Reload").
		Str(constants.KEY_PROCESS, "getting session").
		Logger()

	logger.Info().Msg("getting session")
	s, token, err := t.session(logger.WithContext(c), r)
	if err != nil {
		err = fmt.Errorf("failed getting session with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger = logger.With().Str(constants.KEY_SESSION_ID, s.ID.String()).Logger()
	logger.Info().Msg("got session")

	logger = logger.With().Str(constants.KEY_PROCESS, "reloading cart").Logger()
	logger.Info().Msg("reloading cart")
	if err := s.Reload(logger.WithContext(c)); err != nil {
		err = fmt.Errorf("failed reloading cart with error=%w", err)
		writeFailure(c, w, tokenHeader(token), span, logger, statusOf(err), err)
		return
	}
	logger.Info().Msg("reloaded cart")

	inHttp.WriteJsonResponse(c, w, tokenHeader(token), map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "reloaded cart",
		"data": map[string]interface{}{
			"cart": response.FromSession(s),
		},
	})
}

// Price answers the live display price of a selection, independent of any
// snapshot stored in a cart.
func (t CartController) Price(w http.ResponseWriter, r *http.Request) {
	c, span := cartOtel.Tracer.Start(r.Context(), "CartController Price")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartController Price").
		Str(constants.KEY_PROCESS, "parsing query").
		Logger()

	logger.Info().Msg("parsing query")
	query := r.URL.Query()
	req := request.Selection{}
	for name, into := range map[string]*uuid.NullUUID{
		"productId": &req.ProductID,
		"variantId": &req.VariantID,
		"comboId":   &req.ComboID,
	} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			err = fmt.Errorf("failed parsing %s=%s with error=%w", name, raw, err)
			writeFailure(c, w, map[string]string{}, span, logger, http.StatusBadRequest, err)
			return
		}
		*into = uuid.NullUUID{UUID: id, Valid: true}
	}
	sel, err := req.Selection()
	if err != nil {
		writeFailure(c, w, map[string]string{}, span, logger, http.StatusBadRequest, err)
		return
	}
	logger = logger.With().Str(constants.KEY_LINE_KEY, sel.Key().String()).Logger()
	logger.Info().Msg("parsed query")

	logger = logger.With().Str(constants.KEY_PROCESS, "resolving price").Logger()
	logger.Info().Msg("resolving price")
	entity, err := catalog.ResolveEntity(logger.WithContext(c), t.catalog, sel)
	if err != nil {
		err = fmt.Errorf("failed resolving price with error=%w", err)
		writeFailure(c, w, map[string]string{}, span, logger, statusOf(err), err)
		return
	}
	logger.Info().Msg("resolved price")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "resolved price",
		"data": map[string]interface{}{
			"entity": entity,
		},
	})
}
