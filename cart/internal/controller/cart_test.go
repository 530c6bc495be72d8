package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/cart/internal/catalog"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/cart/internal/session"
	"github.com/Alturino/storefront/internal/constants"
)

const secretKey = "test-secret"

type memoryDurable struct {
	mu     sync.Mutex
	loaded map[uuid.UUID]persistence.Loaded
}

func (m *memoryDurable) Load(_ context.Context, owner model.Owner) (persistence.Loaded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[owner.UserID], nil
}

func (m *memoryDurable) Replace(_ context.Context, owner model.Owner, lines []model.Payload, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version <= m.loaded[owner.UserID].Version {
		return cartErrors.ErrSuperseded
	}
	m.loaded[owner.UserID] = persistence.Loaded{Lines: lines, Version: version}
	return nil
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type cartData struct {
	Cart struct {
		Owner   string `json:"owner"`
		Version uint64 `json:"version"`
		Lines   []struct {
			Quantity  int32           `json:"quantity"`
			UnitPrice decimal.Decimal `json:"unitPrice"`
			Kind      string          `json:"kind"`
		} `json:"lines"`
		Totals struct {
			Items int64           `json:"items"`
			Price decimal.Decimal `json:"price"`
		} `json:"totals"`
	} `json:"cart"`
}

type testServer struct {
	router    *mux.Router
	productID uuid.UUID
	durable   *memoryDurable
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	productID := uuid.New()
	sel := model.ProductSelection{ProductID: productID}
	cat := catalog.Static{
		sel.Key(): {Product: &model.Product{
			ID:    productID,
			Name:  "Sencha",
			Price: decimal.NullDecimal{Decimal: decimal.NewFromInt(450), Valid: true},
		}},
	}
	durable := &memoryDurable{loaded: map[uuid.UUID]persistence.Loaded{}}
	registry := session.NewRegistry(session.Deps{
		Persistence: persistence.NewRouter(persistence.NewEphemeral(persistence.NewMemoryStorage()), durable),
		Catalog:     cat,
	}, 0)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	router := mux.NewRouter()
	AttachCartController(router, registry, cat, secretKey)
	return testServer{router: router, productID: productID, durable: durable}
}

func (s testServer) do(t *testing.T, method, target, token string, body interface{}, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set(constants.HEADER_SESSION_TOKEN, token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	env := envelope{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return rec, env
}

func signedToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    constants.APP_USER_SERVICE,
		Audience:  jwt.ClaimStrings{constants.AUDIENCE_USER},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secretKey))
	require.NoError(t, err)
	return signed
}

func TestGetCartMintsToken(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/carts", "", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(constants.HEADER_SESSION_TOKEN))
	data := cartData{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Empty(t, data.Cart.Lines)
}

func TestAddLine(t *testing.T) {
	testCases := []struct {
		name     string
		body     interface{}
		target   string
		expected int
	}{
		{
			name:     "given valid line and wait should answer persisted cart",
			target:   "/carts/lines?wait=true",
			expected: http.StatusOK,
		},
		{
			name:     "given valid line should answer optimistic cart",
			target:   "/carts/lines",
			expected: http.StatusAccepted,
		},
		{
			name:     "given zero quantity should reject",
			target:   "/carts/lines",
			body:     map[string]interface{}{"quantity": 0},
			expected: http.StatusBadRequest,
		},
		{
			name:     "given quantity above the line cap should reject",
			target:   "/carts/lines",
			body:     map[string]interface{}{"productId": uuid.New(), "quantity": 10000},
			expected: http.StatusBadRequest,
		},
		{
			name:     "given no selection should reject",
			target:   "/carts/lines",
			body:     map[string]interface{}{"quantity": 1},
			expected: http.StatusBadRequest,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			body := tc.body
			if body == nil {
				body = map[string]interface{}{"productId": s.productID, "quantity": 2}
			}

			rec, env := s.do(t, http.MethodPost, tc.target, "token-1", body, nil)

			assert.Equal(t, tc.expected, rec.Code)
			assert.Equal(t, tc.expected, env.StatusCode)
			if tc.expected >= http.StatusBadRequest {
				assert.Equal(t, "failed", env.Status)
				return
			}
			_, env = s.do(t, http.MethodGet, "/carts", "token-1", nil, nil)
			data := cartData{}
			require.NoError(t, json.Unmarshal(env.Data, &data))
			require.Len(t, data.Cart.Lines, 1)
			assert.EqualValues(t, 2, data.Cart.Lines[0].Quantity)
			assert.True(t, decimal.NewFromInt(900).Equal(data.Cart.Totals.Price))
		})
	}
}

func TestSetQuantityMissingLine(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPut, "/carts/lines", "token-1", map[string]interface{}{
		"productId": s.productID,
		"quantity":  3,
	}, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()
	rec, _ := s.do(t, http.MethodPost, "/carts/lines?wait=true", "token-1", map[string]interface{}{
		"productId": s.productID,
		"quantity":  1,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/carts/login", "token-1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := s.do(t, http.MethodPost, "/carts/login", "token-1", nil, map[string]string{
		"Authorization": "Bearer " + signedToken(t, userID),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := cartData{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.EqualValues(t, 1, data.Cart.Version)
	require.Len(t, data.Cart.Lines, 1)
	assert.Len(t, s.durable.loaded[userID].Lines, 1)

	rec, _ = s.do(t, http.MethodPost, "/carts/logout", "token-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	newToken := rec.Header().Get(constants.HEADER_SESSION_TOKEN)
	assert.NotEqual(t, "token-1", newToken)

	_, env = s.do(t, http.MethodGet, "/carts", newToken, nil, nil)
	data = cartData{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Empty(t, data.Cart.Lines)
}

func TestPrice(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/carts/catalog/price?productId="+s.productID.String(), "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := struct {
		Entity catalog.Entity `json:"entity"`
	}{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Sencha", data.Entity.DisplayName)
	assert.True(t, decimal.NewFromInt(450).Equal(data.Entity.UnitPrice))

	rec, _ = s.do(t, http.MethodGet, "/carts/catalog/price?productId="+uuid.NewString(), "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/carts/catalog/price?productId=not-a-uuid", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
