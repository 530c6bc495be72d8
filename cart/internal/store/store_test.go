package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/cart/internal/catalog"
	cartErrors "github.com/Alturino/storefront/cart/internal/errors"
	"github.com/Alturino/storefront/cart/internal/model"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/cart/internal/pricing"
)

// fakePersister keeps one cart in memory. replace, when set, decides the
// outcome of every write before it is applied.
type fakePersister struct {
	mu      sync.Mutex
	loaded  persistence.Loaded
	loadErr error
	replace func(c context.Context, version uint64) error
	writes  int
}

func (f *fakePersister) Load(context.Context, model.Owner) (persistence.Loaded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded, f.loadErr
}

func (f *fakePersister) Replace(c context.Context, _ model.Owner, lines []model.Payload, version uint64) error {
	f.mu.Lock()
	hook := f.replace
	f.writes++
	f.mu.Unlock()

	if hook != nil {
		if err := hook(c, version); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if version <= f.loaded.Version {
		return cartErrors.ErrSuperseded
	}
	f.loaded = persistence.Loaded{Lines: lines, Version: version}
	return nil
}

func (f *fakePersister) setReplace(hook func(c context.Context, version uint64) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replace = hook
}

func (f *fakePersister) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type fixture struct {
	productX model.ProductSelection
	variant  model.VariantSelection
	combo    model.ComboSelection
	catalog  catalog.Static
}

func newFixture() fixture {
	productID, variantID, comboID, otherID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	variant := model.Variant{ID: variantID, ProductID: productID, Price: decimal.NewFromInt(500), Active: true}
	product := &model.Product{
		ID:       productID,
		Name:     "Green tea",
		Price:    decimal.NullDecimal{Decimal: decimal.NewFromInt(250), Valid: true},
		Variants: []model.Variant{variant},
	}
	combo := &model.Combo{
		ID:    comboID,
		Name:  "Breakfast bundle",
		Price: decimal.NewFromInt(1200),
		Items: []model.ComboItem{
			{ProductID: productID, VariantID: uuid.NullUUID{UUID: variantID, Valid: true}, Quantity: 2},
			{ProductID: otherID, Quantity: 1},
		},
	}
	f := fixture{
		productX: model.ProductSelection{ProductID: productID},
		variant:  model.VariantSelection{ProductID: productID, VariantID: variantID},
		combo:    model.ComboSelection{ComboID: comboID},
	}
	f.catalog = catalog.Static{
		f.productX.Key(): {Product: product},
		f.variant.Key():  {Product: product, Variant: &variant},
		f.combo.Key():    {Combo: combo},
	}
	return f
}

func ready(t *testing.T, p persistence.Persister, cat catalog.Catalog, opts ...Option) *Store {
	t.Helper()
	s := New(p, cat, opts...)
	require.NoError(t, s.Init(context.Background(), model.Anonymous("session-token")))
	require.Equal(t, Ready, s.State())
	return s
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for persist result")
		return Result{}
	}
}

func TestScenarioAddProductWithBasePrice(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)

	ch, err := s.AddLine(context.Background(), f.productX, 2)
	require.NoError(t, err)
	assert.NoError(t, await(t, ch).Err)

	totals := s.Totals()
	assert.EqualValues(t, 2, totals.Items)
	assert.Equal(t, "500", totals.Price.String())
}

func TestScenarioAddSameVariantTwice(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)

	for range 2 {
		ch, err := s.AddLine(context.Background(), f.variant, 1)
		require.NoError(t, err)
		assert.NoError(t, await(t, ch).Err)
	}

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.EqualValues(t, 2, lines[0].Quantity)
	assert.Equal(t, "1000", s.Totals().Price.String())
}

func TestScenarioAddCombo(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)

	ch, err := s.AddCombo(context.Background(), f.combo.ComboID, 1)
	require.NoError(t, err)
	assert.NoError(t, await(t, ch).Err)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, model.Key{ComboID: f.combo.ComboID}, lines[0].Key())
	assert.Equal(t, "1200", pricing.Effective(lines[0]).String())
}

func TestScenarioRemoveWithFailingPersist(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)
	ch, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)
	require.NoError(t, await(t, ch).Err)

	persistErr := errors.New("network unreachable")
	p.setReplace(func(context.Context, uint64) error { return persistErr })
	var rolledBack []Changed
	var mu sync.Mutex
	s.Subscribe(func(e Event) {
		if changed, ok := e.(Changed); ok && changed.RolledBack {
			mu.Lock()
			rolledBack = append(rolledBack, changed)
			mu.Unlock()
		}
	})

	ch, err = s.RemoveLine(context.Background(), f.productX.Key())
	require.NoError(t, err)
	result := await(t, ch)

	assert.ErrorIs(t, result.Err, persistErr)
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, f.productX.Key(), lines[0].Key())
	assert.ErrorIs(t, s.LastError(), persistErr)
	assert.Equal(t, Ready, s.State())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, rolledBack, 1)
	assert.Len(t, rolledBack[0].Lines, 1)
}

func TestAddLineCollapsesSameKey(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)

	quantities := []int32{1, 4, 2, 7}
	var sum int32
	for _, q := range quantities {
		sum += q
		_, err := s.AddLine(context.Background(), f.variant, q)
		require.NoError(t, err)
	}
	require.NoError(t, s.Wait(context.Background()))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, sum, lines[0].Quantity)
}

func TestQuantityOverflowIsNotApplied(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(s *Store, f fixture) (<-chan Result, error)
	}{
		{
			name: "given increment past the cap should reject",
			mutate: func(s *Store, f fixture) (<-chan Result, error) {
				return s.AddLine(context.Background(), f.productX, 2)
			},
		},
		{
			name: "given max int32 increment should reject",
			mutate: func(s *Store, f fixture) (<-chan Result, error) {
				return s.AddLine(context.Background(), f.productX, math.MaxInt32)
			},
		},
		{
			name: "given bulk add repeating a key past the cap should reject",
			mutate: func(s *Store, f fixture) (<-chan Result, error) {
				return s.AddLines(context.Background(), []model.Selection{f.variant, f.productX}, []int32{1, 1})
			},
		},
		{
			name: "given set quantity above the cap should reject",
			mutate: func(s *Store, f fixture) (<-chan Result, error) {
				return s.SetQuantity(context.Background(), f.productX.Key(), model.MaxQuantity+1)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			p := &fakePersister{}
			s := ready(t, p, f.catalog)
			ch, err := s.AddLine(context.Background(), f.productX, model.MaxQuantity)
			require.NoError(t, err)
			require.NoError(t, await(t, ch).Err)
			writes := p.writeCount()

			ch, err = tc.mutate(s, f)

			var validation cartErrors.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Nil(t, ch)
			lines := s.Lines()
			require.Len(t, lines, 1)
			assert.Equal(t, model.MaxQuantity, lines[0].Quantity)
			assert.Equal(t, int64(model.MaxQuantity), s.Totals().Items)
			assert.Equal(t, writes, p.writeCount())
		})
	}
}

func TestSetQuantityFloor(t *testing.T) {
	for _, q := range []int32{0, -1, -50} {
		f := newFixture()
		s := ready(t, &fakePersister{}, f.catalog)
		_, err := s.AddLine(context.Background(), f.productX, 3)
		require.NoError(t, err)

		ch, err := s.SetQuantity(context.Background(), f.productX.Key(), q)
		require.NoError(t, err)
		require.NoError(t, await(t, ch).Err)

		assert.Equal(t, -1, model.IndexOf(s.Lines(), f.productX.Key()), "quantity=%d", q)
	}
}

func TestSetQuantity(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)
	_, err := s.AddLine(context.Background(), f.productX, 3)
	require.NoError(t, err)

	_, err = s.SetQuantity(context.Background(), f.productX.Key(), 9)
	require.NoError(t, err)
	assert.EqualValues(t, 9, s.Lines()[0].Quantity)

	_, err = s.SetQuantity(context.Background(), f.variant.Key(), 9)
	assert.ErrorIs(t, err, cartErrors.ErrLineNotFound)
}

func TestRollbackRestoresExactSnapshot(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)
	ch, err := s.AddLines(context.Background(), []model.Selection{f.productX, f.combo}, []int32{2, 1})
	require.NoError(t, err)
	require.NoError(t, await(t, ch).Err)
	before := s.Lines()
	beforeTotals := s.Totals()

	p.setReplace(func(context.Context, uint64) error { return errors.New("write failed") })
	mutations := []func() (<-chan Result, error){
		func() (<-chan Result, error) { return s.AddLine(context.Background(), f.variant, 1) },
		func() (<-chan Result, error) { return s.AddLine(context.Background(), f.productX, 5) },
		func() (<-chan Result, error) { return s.RemoveLine(context.Background(), f.combo.Key()) },
		func() (<-chan Result, error) { return s.SetQuantity(context.Background(), f.productX.Key(), 0) },
		func() (<-chan Result, error) { return s.SetQuantity(context.Background(), f.productX.Key(), 7) },
		func() (<-chan Result, error) { return s.Clear(context.Background()) },
		func() (<-chan Result, error) { return s.CompleteCheckout(context.Background()) },
	}
	for _, mutate := range mutations {
		ch, err := mutate()
		require.NoError(t, err)
		assert.Error(t, await(t, ch).Err)
		assert.Equal(t, before, s.Lines())
		assert.True(t, beforeTotals.Price.Equal(s.Totals().Price))
	}
}

func TestInvalidBulkAddIsNotApplied(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)

	tests := []struct {
		name       string
		selections []model.Selection
		quantities []int32
	}{
		{name: "given mismatched lengths should reject", selections: []model.Selection{f.productX, f.combo}, quantities: []int32{1}},
		{name: "given one non positive quantity should reject", selections: []model.Selection{f.productX, f.combo}, quantities: []int32{1, 0}},
		{name: "given nil selection should reject", selections: []model.Selection{f.productX, nil}, quantities: []int32{1, 1}},
		{name: "given selection with nil id should reject", selections: []model.Selection{model.ProductSelection{}}, quantities: []int32{1}},
		{name: "given no selections should reject", selections: nil, quantities: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := s.AddLines(context.Background(), tt.selections, tt.quantities)
			var validationErr cartErrors.ValidationError
			assert.ErrorAs(t, err, &validationErr)
			assert.Nil(t, ch)
			assert.Empty(t, s.Lines())
			assert.Zero(t, p.writeCount())
		})
	}
}

func TestCatalogFailureIsNotApplied(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)

	_, err := s.AddLine(context.Background(), model.ProductSelection{ProductID: uuid.New()}, 1)

	assert.ErrorIs(t, err, cartErrors.ErrCatalogLookup)
	assert.ErrorIs(t, err, cartErrors.ErrEntryNotFound)
	assert.Empty(t, s.Lines())
	assert.Zero(t, p.writeCount())
}

func TestPriceSnapshotIsNotRederived(t *testing.T) {
	f := newFixture()
	price := decimal.NewFromInt(250)
	cat := catalog.Func(func(_ context.Context, sel model.Selection) (model.CatalogEntry, error) {
		return model.CatalogEntry{Product: &model.Product{
			ID:    sel.Key().ProductID,
			Name:  "Green tea",
			Price: decimal.NullDecimal{Decimal: price, Valid: true},
		}}, nil
	})
	s := ready(t, &fakePersister{}, cat)

	_, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)
	price = decimal.NewFromInt(999)
	_, err = s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)

	assert.Equal(t, "500", s.Totals().Price.String())
}

func TestMutationsBeforeInitAreRejected(t *testing.T) {
	f := newFixture()
	s := New(&fakePersister{}, f.catalog)

	_, err := s.AddLine(context.Background(), f.productX, 1)
	assert.ErrorIs(t, err, cartErrors.ErrNotReady)
	_, err = s.Clear(context.Background())
	assert.ErrorIs(t, err, cartErrors.ErrNotReady)
	assert.Equal(t, Uninitialized, s.State())
}

func TestInitWithInvalidOwnerMovesToError(t *testing.T) {
	f := newFixture()
	s := New(&fakePersister{}, f.catalog)

	err := s.Init(context.Background(), model.Anonymous(""))

	var validationErr cartErrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, Error, s.State())
	_, err = s.AddLine(context.Background(), f.productX, 1)
	assert.ErrorIs(t, err, cartErrors.ErrNotReady)
}

func TestInitLoadFailureDegradesToEmpty(t *testing.T) {
	f := newFixture()
	s := New(&fakePersister{loadErr: errors.New("connection refused")}, f.catalog)

	require.NoError(t, s.Init(context.Background(), model.User(uuid.New())))

	assert.Equal(t, Ready, s.State())
	assert.True(t, s.Degraded())
	assert.Empty(t, s.Lines())
	assert.Error(t, s.LastError())
}

func TestInitLoadsPersistedLines(t *testing.T) {
	f := newFixture()
	stored := []model.Line{{Selection: f.productX, Quantity: 3, Snapshot: model.Snapshot{UnitPrice: decimal.NewFromInt(250)}}}
	p := &fakePersister{loaded: persistence.Loaded{Lines: model.Payloads(stored), Version: 4}}
	s := ready(t, p, f.catalog)

	assert.Equal(t, stored, s.Lines())
	assert.EqualValues(t, 4, s.Version())

	ch, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)
	result := await(t, ch)
	assert.NoError(t, result.Err)
	assert.EqualValues(t, 5, result.Version)
}

func TestNotifications(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)

	var mu sync.Mutex
	var added, changed, persisted int
	unsubscribe := s.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e.(type) {
		case LineAdded:
			added++
		case Changed:
			changed++
		case Persisted:
			persisted++
		}
	})
	s.Subscribe(func(Event) { panic("listener bug") })

	for range 2 {
		ch, err := s.AddLine(context.Background(), f.productX, 1)
		require.NoError(t, err)
		require.NoError(t, await(t, ch).Err)
	}

	mu.Lock()
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, changed)
	assert.Equal(t, 2, persisted)
	mu.Unlock()

	unsubscribe()
	_, err := s.Clear(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, changed)
}

func TestOutOfOrderCompletionKeepsLastIssued(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)

	release := make(chan struct{})
	p.setReplace(func(_ context.Context, version uint64) error {
		if version == 1 {
			<-release
		}
		return nil
	})

	first, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)
	second, err := s.RemoveLine(context.Background(), f.productX.Key())
	require.NoError(t, err)

	require.NoError(t, await(t, second).Err)
	close(release)
	assert.NoError(t, await(t, first).Err)

	assert.Empty(t, s.Lines())
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.EqualValues(t, 2, p.loaded.Version)
	assert.Empty(t, p.loaded.Lines)
}

func TestForeignNewerWriteRollsBack(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)
	p.mu.Lock()
	p.loaded.Version = 10
	p.mu.Unlock()

	ch, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, await(t, ch).Err, cartErrors.ErrSuperseded)
	assert.Empty(t, s.Lines())
}

func TestSupersededWriteWaitsForNewerWrite(t *testing.T) {
	testCases := []struct {
		name           string
		foreignVersion uint64
		expectedErr    error
		expectedLines  int
		expectedStored int
	}{
		{
			name:           "given newer own write reaches storage should absorb superseded write",
			foreignVersion: 1,
			expectedLines:  2,
			expectedStored: 2,
		},
		{
			name:           "given newer own write is superseded too should roll back both",
			foreignVersion: 10,
			expectedErr:    cartErrors.ErrSuperseded,
			expectedLines:  0,
			expectedStored: 0,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			p := &fakePersister{}
			s := ready(t, p, f.catalog)
			p.mu.Lock()
			p.loaded.Version = tc.foreignVersion
			p.mu.Unlock()

			issued, release := make(chan struct{}), make(chan struct{})
			p.setReplace(func(_ context.Context, version uint64) error {
				switch version {
				case 1:
					<-issued
				case 2:
					<-release
				}
				return nil
			})

			first, err := s.AddLine(context.Background(), f.productX, 1)
			require.NoError(t, err)
			second, err := s.AddLine(context.Background(), f.variant, 1)
			require.NoError(t, err)
			close(issued)

			require.Eventually(t, func() bool { return p.writeCount() == 2 }, time.Second, time.Millisecond)
			select {
			case r := <-first:
				t.Fatalf("first write settled before the newer write: %+v", r)
			case <-time.After(20 * time.Millisecond):
			}
			close(release)

			r1, r2 := await(t, first), await(t, second)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, r1.Err, tc.expectedErr)
				assert.ErrorIs(t, r2.Err, tc.expectedErr)
			} else {
				assert.NoError(t, r1.Err)
				assert.NoError(t, r2.Err)
			}
			assert.Len(t, s.Lines(), tc.expectedLines)
			p.mu.Lock()
			defer p.mu.Unlock()
			assert.Len(t, p.loaded.Lines, tc.expectedStored)
		})
	}
}

func TestPersistTimeout(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	p.setReplace(func(c context.Context, _ uint64) error {
		<-c.Done()
		return c.Err()
	})
	s := ready(t, p, f.catalog, WithPersistTimeout(20*time.Millisecond))

	ch, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, await(t, ch).Err, context.DeadlineExceeded)
	assert.Empty(t, s.Lines())
}

func TestCancelledRequestDoesNotCancelPersist(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	started := make(chan struct{})
	p.setReplace(func(c context.Context, _ uint64) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return c.Err()
	})
	s := ready(t, p, f.catalog)

	c, cancel := context.WithCancel(context.Background())
	ch, err := s.AddLine(c, f.productX, 1)
	require.NoError(t, err)
	<-started
	cancel()

	assert.NoError(t, await(t, ch).Err)
	assert.Len(t, s.Lines(), 1)
}

func TestWaitHonoursContext(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	release := make(chan struct{})
	defer close(release)
	p.setReplace(func(context.Context, uint64) error {
		<-release
		return nil
	})
	s := ready(t, p, f.catalog)
	_, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)
	assert.Equal(t, Mutating, s.State())

	c, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(c), context.DeadlineExceeded)
}

func TestClosedStoreRejectsChanges(t *testing.T) {
	f := newFixture()
	p := &fakePersister{}
	s := ready(t, p, f.catalog)
	ch, err := s.AddLine(context.Background(), f.productX, 1)
	require.NoError(t, err)

	s.Close()

	assert.NoError(t, await(t, ch).Err)
	_, err = s.AddLine(context.Background(), f.productX, 1)
	assert.ErrorIs(t, err, cartErrors.ErrSessionClosed)
	assert.ErrorIs(t, s.Reload(context.Background()), cartErrors.ErrSessionClosed)
	assert.ErrorIs(t, s.Init(context.Background(), model.Anonymous("other")), cartErrors.ErrSessionClosed)
	require.Len(t, s.Lines(), 1)
	assert.EqualValues(t, 1, s.Lines()[0].Quantity)
	assert.Equal(t, 1, p.writeCount())
}

func TestReseed(t *testing.T) {
	f := newFixture()
	s := ready(t, &fakePersister{}, f.catalog)
	user := model.User(uuid.New())
	lines := []model.Line{
		{Selection: f.productX, Quantity: 1, Snapshot: model.Snapshot{UnitPrice: decimal.NewFromInt(250)}},
		{Selection: f.productX, Quantity: 2, Snapshot: model.Snapshot{UnitPrice: decimal.NewFromInt(250)}},
	}

	require.NoError(t, s.Reseed(context.Background(), user, lines, 7, true))

	assert.Equal(t, user, s.Owner())
	assert.True(t, s.Degraded())
	assert.EqualValues(t, 7, s.Version())
	require.Len(t, s.Lines(), 1)
	assert.EqualValues(t, 3, s.Lines()[0].Quantity)
}
