package payment

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexshop/checkout/internal/domain/order"
	"github.com/hexshop/checkout/internal/domain/product"
)

// --- Mock implementations shared by the payment tests ---

type mockOrderRepo struct {
	orders       map[string]*order.Order
	transactions map[string]*order.Transaction // keyed by order id
	seenTxIDs    map[string]bool               // provider transaction ids
	createCalls  int
	txErr        error
}

func newMockOrderRepo(orders ...*order.Order) *mockOrderRepo {
	m := &mockOrderRepo{
		orders:       map[string]*order.Order{},
		transactions: map[string]*order.Transaction{},
		seenTxIDs:    map[string]bool{},
	}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) CreateTransaction(_ context.Context, t *order.Transaction) (bool, error) {
	m.createCalls++
	if m.txErr != nil {
		return false, m.txErr
	}
	if m.seenTxIDs[t.ProviderTransactionID] {
		return false, nil
	}
	m.seenTxIDs[t.ProviderTransactionID] = true
	m.transactions[t.OrderID] = t
	return true, nil
}

func (m *mockOrderRepo) TransactionByOrderID(_ context.Context, orderID string) (*order.Transaction, error) {
	t, ok := m.transactions[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return t, nil
}

func (m *mockOrderRepo) ListRecentPaid(_ context.Context, _ string, _ int) ([]order.Order, error) {
	return nil, nil
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockProvider struct {
	lastRequest *CheckoutRequest
	sessionRef  SessionRef
	session     *Session
	lineItems   []LineItem
	createErr   error
	getErr      error
	listErr     error
}

func (m *mockProvider) CreateSession(_ context.Context, req CheckoutRequest) (*SessionRef, error) {
	m.lastRequest = &req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &m.sessionRef, nil
}

func (m *mockProvider) GetSession(_ context.Context, _ string) (*Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.session, nil
}

func (m *mockProvider) ListLineItems(_ context.Context, _ string) ([]LineItem, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.lineItems, nil
}

// --- Fixtures ---

const (
	testCurrency = "usd"
	testMerchant = "shop@example.com"
)

func storedOrder() *order.Order {
	items := []order.Item{
		{ProductID: "p1", Quantity: 2, UnitPriceMinorUnits: 500},
		{ProductID: "p2", Quantity: 1, UnitPriceMinorUnits: 1200},
	}
	o := &order.Order{
		ID:               "ord-1",
		Currency:         testCurrency,
		MerchantIdentity: testMerchant,
		Salt:             "aabbccddeeff00112233445566778899",
		Items:            items,
		TotalMinorUnits:  2200,
	}
	o.Digest = order.Digest(o.Currency, o.MerchantIdentity, o.Salt, o.Items, o.TotalMinorUnits)
	return o
}

func testCatalog() *mockProductRepo {
	return &mockProductRepo{byID: map[string]*product.Product{
		"p1": {ID: "p1", Name: "Widget", Price: decimal.RequireFromString("5.00")},
		"p2": {ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("12.00")},
	}}
}

func newCheckout(orders order.Repository, products product.Repository, provider Provider) *CheckoutService {
	return NewCheckoutService(orders, products, provider, CheckoutConfig{
		Currency:         testCurrency,
		MerchantIdentity: testMerchant,
		SuccessURL:       "https://shop.example.com/success",
		CancelURL:        "https://shop.example.com/cancel",
	})
}

// --- CreateSession ---

func TestCreateSession_OrderNotFound(t *testing.T) {
	svc := newCheckout(newMockOrderRepo(), testCatalog(), &mockProvider{})

	_, err := svc.CreateSession(context.Background(), "missing", "whatever")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCreateSession_DigestMismatch(t *testing.T) {
	o := storedOrder()
	provider := &mockProvider{}
	svc := newCheckout(newMockOrderRepo(o), testCatalog(), provider)

	_, err := svc.CreateSession(context.Background(), o.ID, "0000000000000000000000000000000000000000000000000000000000000000")
	require.ErrorIs(t, err, ErrDigestMismatch)
	assert.Nil(t, provider.lastRequest, "provider must not be called on digest mismatch")
}

func TestCreateSession_FreeOrderShortCircuits(t *testing.T) {
	o := storedOrder()
	o.TotalMinorUnits = 0
	o.DiscountMinorUnits = 2200
	o.Digest = order.Digest(o.Currency, o.MerchantIdentity, o.Salt, o.Items, o.TotalMinorUnits)

	repo := newMockOrderRepo(o)
	provider := &mockProvider{}
	svc := newCheckout(repo, testCatalog(), provider)

	res, err := svc.CreateSession(context.Background(), o.ID, o.Digest)
	require.NoError(t, err)
	assert.True(t, res.Free)
	assert.Empty(t, res.SessionID)
	assert.Nil(t, provider.lastRequest, "provider must never see a free order")

	tx, err := repo.TransactionByOrderID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "free:"+o.ID, tx.ProviderTransactionID)
	assert.Equal(t, int64(0), tx.AmountMinorUnits)
}

func TestCreateSession_RepricesFromCatalog(t *testing.T) {
	o := storedOrder()
	// Stale stored prices: the session must carry the current catalog price.
	o.Items[0].UnitPriceMinorUnits = 1
	o.Digest = order.Digest(o.Currency, o.MerchantIdentity, o.Salt, o.Items, o.TotalMinorUnits)

	provider := &mockProvider{sessionRef: SessionRef{ID: "cs_1", URL: "https://pay.example.com/cs_1"}}
	svc := newCheckout(newMockOrderRepo(o), testCatalog(), provider)

	res, err := svc.CreateSession(context.Background(), o.ID, o.Digest)
	require.NoError(t, err)
	assert.False(t, res.Free)
	assert.Equal(t, "cs_1", res.SessionID)
	assert.Equal(t, "https://pay.example.com/cs_1", res.URL)

	require.NotNil(t, provider.lastRequest)
	req := provider.lastRequest
	require.Len(t, req.Items, 2)
	assert.Equal(t, int64(500), req.Items[0].UnitAmountMinor, "catalog price, not the stored one")
	assert.Equal(t, "Widget", req.Items[0].Name)
	assert.Equal(t, 2, req.Items[0].Quantity)
}

func TestCreateSession_MetadataShape(t *testing.T) {
	o := storedOrder()
	o.DiscountMinorUnits = 300
	provider := &mockProvider{sessionRef: SessionRef{ID: "cs_1"}}
	svc := newCheckout(newMockOrderRepo(o), testCatalog(), provider)

	_, err := svc.CreateSession(context.Background(), o.ID, o.Digest)
	require.NoError(t, err)

	req := provider.lastRequest
	require.NotNil(t, req)
	assert.Equal(t, int64(300), req.DiscountMinorUnits)
	assert.Equal(t, o.ID, req.ClientReferenceID)

	assert.Equal(t, o.ID, req.Metadata[MetaOrderID])
	assert.Equal(t, o.Salt, req.Metadata[MetaSalt])
	assert.Equal(t, `["p1","p2"]`, req.Metadata[MetaItems])
	assert.Len(t, req.Metadata, 3, "metadata carries ids and salt only, never prices")
}

func TestCreateSession_ProviderError(t *testing.T) {
	o := storedOrder()
	provider := &mockProvider{createErr: assert.AnError}
	svc := newCheckout(newMockOrderRepo(o), testCatalog(), provider)

	_, err := svc.CreateSession(context.Background(), o.ID, o.Digest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create checkout session")

	var provErr *ProviderError
	assert.ErrorAs(t, err, &provErr, "provider failures must be distinguishable from storage failures")
}

func TestCreateSession_FreeOrderStorageError(t *testing.T) {
	o := storedOrder()
	o.TotalMinorUnits = 0
	o.DiscountMinorUnits = 2200
	o.Digest = order.Digest(o.Currency, o.MerchantIdentity, o.Salt, o.Items, o.TotalMinorUnits)

	repo := newMockOrderRepo(o)
	repo.txErr = assert.AnError
	svc := newCheckout(repo, testCatalog(), &mockProvider{})

	_, err := svc.CreateSession(context.Background(), o.ID, o.Digest)
	require.Error(t, err)

	var provErr *ProviderError
	assert.False(t, errors.As(err, &provErr), "a local storage failure is not a provider failure")
}

// --- Verify ---

func TestVerify_RequiresBothSignals(t *testing.T) {
	o := storedOrder()

	t.Run("provider unpaid", func(t *testing.T) {
		repo := newMockOrderRepo(o)
		repo.transactions[o.ID] = &order.Transaction{OrderID: o.ID}
		provider := &mockProvider{session: &Session{
			ID: "cs_1", Paid: false, Metadata: map[string]string{MetaOrderID: o.ID},
		}}
		svc := newCheckout(repo, testCatalog(), provider)

		paid, err := svc.Verify(context.Background(), "cs_1")
		require.NoError(t, err)
		assert.False(t, paid)
	})

	t.Run("no local transaction", func(t *testing.T) {
		provider := &mockProvider{session: &Session{
			ID: "cs_1", Paid: true, Metadata: map[string]string{MetaOrderID: o.ID},
		}}
		svc := newCheckout(newMockOrderRepo(o), testCatalog(), provider)

		paid, err := svc.Verify(context.Background(), "cs_1")
		require.NoError(t, err)
		assert.False(t, paid, "provider paid status alone is not settlement")
	})

	t.Run("both present", func(t *testing.T) {
		repo := newMockOrderRepo(o)
		repo.transactions[o.ID] = &order.Transaction{OrderID: o.ID}
		provider := &mockProvider{session: &Session{
			ID: "cs_1", Paid: true, Metadata: map[string]string{MetaOrderID: o.ID},
		}}
		svc := newCheckout(repo, testCatalog(), provider)

		paid, err := svc.Verify(context.Background(), "cs_1")
		require.NoError(t, err)
		assert.True(t, paid)
	})
}

func TestVerify_ProviderError(t *testing.T) {
	svc := newCheckout(newMockOrderRepo(), testCatalog(), &mockProvider{getErr: assert.AnError})

	_, err := svc.Verify(context.Background(), "cs_1")
	require.Error(t, err)

	var provErr *ProviderError
	assert.ErrorAs(t, err, &provErr)
}

func TestItemOrderRoundTrip(t *testing.T) {
	pids := []string{"p1", "p2", "p3"}

	encoded := encodeItemOrder(pids)
	decoded, err := decodeItemOrder(encoded)
	require.NoError(t, err)
	assert.Equal(t, pids, decoded)

	_, err = decodeItemOrder("not json")
	assert.Error(t, err)
}
