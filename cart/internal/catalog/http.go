package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/internal/constants"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

// envelope is the product service response body.
type envelope[T any] struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       T      `json:"data"`
}

// HTTP looks entries up from the product service at baseURL, which serves
// GET /products/{id} and GET /combos/{id}.
type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, client *http.Client) HTTP {
	if client == nil {
		client = otelhttp.DefaultClient
	}
	return HTTP{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (h HTTP) Lookup(c context.Context, sel model.Selection) (model.CatalogEntry, error) {
	c, span := cartOtel.Tracer.Start(c, "catalog.HTTP Lookup")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "catalog.HTTP Lookup").
		Str(constants.KEY_LINE_KEY, sel.Key().String()).
		Logger()

	switch s := sel.(type) {
	case model.ComboSelection:
		logger = logger.With().Str(constants.KEY_PROCESS, "getting combo from product service").Logger()
		logger.Debug().Msg("getting combo from product service")
		raw := RawCombo{}
		if err := h.get(c, "combos", s.ComboID, &raw); err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return model.CatalogEntry{}, err
		}
		combo, err := NormalizeCombo(raw)
		if err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return model.CatalogEntry{}, err
		}
		logger.Debug().Msg("got combo from product service")
		return Entry(sel, nil, &combo), nil
	default:
		logger = logger.With().Str(constants.KEY_PROCESS, "getting product from product service").Logger()
		logger.Debug().Msg("getting product from product service")
		raw := RawProduct{}
		if err := h.get(c, "products", sel.Key().ProductID, &raw); err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return model.CatalogEntry{}, err
		}
		product, err := NormalizeProduct(raw)
		if err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return model.CatalogEntry{}, err
		}
		logger.Debug().Msg("got product from product service")
		return Entry(sel, &product, nil), nil
	}
}

func (h HTTP) get(c context.Context, resource string, id uuid.UUID, out any) error {
	url := fmt.Sprintf("%s/%s/%s", h.baseURL, resource, id)
	req, err := http.NewRequestWithContext(c, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed creating request url=%s with error=%w", url, err)
	}
	if requestID := log.RequestIDFromContext(c); requestID != "" {
		req.Header.Add(inHttp.KEY_HEADER_REQUEST_ID, requestID)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed requesting url=%s with error=%w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s id=%s %w", resource, id, cartErrors.ErrEntryNotFound)
	}
	body := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed decoding response of url=%s with error=%w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("product service returned status code=%d with message=%s", resp.StatusCode, body.Message)
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("failed decoding %s id=%s with error=%w", resource, id, err)
	}
	return nil
}
