package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/interfaces/http/middleware"
	"offramp.backend/internal/usecases"
	"offramp.backend/pkg/utils"
)

type walletServiceStub struct {
	createFn  func(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error)
	listFn    func(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error)
	disableFn func(ctx context.Context, userID, id uuid.UUID) error
}

func (s walletServiceStub) CreateWallet(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error) {
	return s.createFn(ctx, userID, chain, assetGroup)
}

func (s walletServiceStub) ListWallets(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error) {
	return s.listFn(ctx, userID)
}

func (s walletServiceStub) DisableWallet(ctx context.Context, userID, id uuid.UUID) error {
	return s.disableFn(ctx, userID, id)
}

type depositServiceStub struct {
	listFn func(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.OnchainDeposit, utils.PaginationMeta, error)
}

func (s depositServiceStub) ListDeposits(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.OnchainDeposit, utils.PaginationMeta, error) {
	return s.listFn(ctx, userID, page, limit)
}

type quoteServiceStub struct {
	quoteFn  func(ctx context.Context, req usecases.QuoteRequest) (*entities.Quote, error)
	getFn    func(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error)
	cancelFn func(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error)
	assets   map[string][]string
}

func (s quoteServiceStub) Quote(ctx context.Context, req usecases.QuoteRequest) (*entities.Quote, error) {
	return s.quoteFn(ctx, req)
}

func (s quoteServiceStub) GetQuote(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error) {
	return s.getFn(ctx, userID, id)
}

func (s quoteServiceStub) CancelQuote(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error) {
	return s.cancelFn(ctx, userID, id)
}

func (s quoteServiceStub) SupportedAssets() map[string][]string { return s.assets }

type executorStub struct {
	executeFn func(ctx context.Context, userID, quoteID uuid.UUID, b entities.Beneficiary) (*entities.Payout, error)
}

func (s executorStub) Execute(ctx context.Context, userID, quoteID uuid.UUID, b entities.Beneficiary) (*entities.Payout, error) {
	return s.executeFn(ctx, userID, quoteID, b)
}

type payoutServiceStub struct {
	getFn  func(ctx context.Context, userID, id uuid.UUID) (*entities.Payout, error)
	listFn func(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.Payout, utils.PaginationMeta, error)
}

func (s payoutServiceStub) GetPayout(ctx context.Context, userID, id uuid.UUID) (*entities.Payout, error) {
	return s.getFn(ctx, userID, id)
}

func (s payoutServiceStub) ListPayouts(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.Payout, utils.PaginationMeta, error) {
	return s.listFn(ctx, userID, page, limit)
}

type ingesterStub struct {
	ingestFn func(ctx context.Context, ev entities.DepositEvent) (*entities.OnchainDeposit, error)
}

func (s ingesterStub) Ingest(ctx context.Context, ev entities.DepositEvent) (*entities.OnchainDeposit, error) {
	return s.ingestFn(ctx, ev)
}

type callbackStub struct {
	callbackFn func(ctx context.Context, signed string) (*entities.Payout, error)
}

func (s callbackStub) HandleProviderCallback(ctx context.Context, signed string) (*entities.Payout, error) {
	return s.callbackFn(ctx, signed)
}

type adminStub struct {
	reviewFn    func(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error)
	retryFn     func(ctx context.Context, id uuid.UUID) (usecases.SweepResult, error)
	capacityFn  func(ctx context.Context, chain string, fee *big.Int) (usecases.Capacity, error)
	anomaliesFn func(ctx context.Context, limit int) ([]*entities.Payout, error)
	resolveFn   func(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (*entities.Payout, error)
	reconcileFn func(ctx context.Context) (usecases.ReconcileSummary, error)
}

func (s adminStub) ListReview(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error) {
	return s.reviewFn(ctx, limit)
}

func (s adminStub) Retry(ctx context.Context, id uuid.UUID) (usecases.SweepResult, error) {
	return s.retryFn(ctx, id)
}

func (s adminStub) CheckCapacity(ctx context.Context, chain string, fee *big.Int) (usecases.Capacity, error) {
	return s.capacityFn(ctx, chain, fee)
}

func (s adminStub) ListAnomalies(ctx context.Context, limit int) ([]*entities.Payout, error) {
	return s.anomaliesFn(ctx, limit)
}

func (s adminStub) ResolvePayout(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (*entities.Payout, error) {
	return s.resolveFn(ctx, id, status, note)
}

func (s adminStub) Reconcile(ctx context.Context) (usecases.ReconcileSummary, error) {
	return s.reconcileFn(ctx)
}

// asUser wraps h so it runs with userID in the gin context, as AuthMiddleware would leave it
func asUser(userID uuid.UUID, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		h(c)
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
