package usecases

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/blockchain"
)

// fakeAdapter is an in-memory chain. Keys are the bytes "key:<address>".
type fakeAdapter struct {
	mu          sync.Mutex
	name        string
	selfPays    bool
	required    int64
	fee         int64
	native      map[string]*big.Int
	tokens      map[string]*big.Int
	confs       map[string]blockchain.ConfirmationStatus
	confErr     error
	submitErr   error
	submitDelay time.Duration
	sigs        map[*blockchain.Transaction]map[string]bool
	submitted   []*blockchain.Transaction
	keys        int
}

func newFakeAdapter(name string, selfPays bool, required int64) *fakeAdapter {
	return &fakeAdapter{
		name:     name,
		selfPays: selfPays,
		required: required,
		fee:      1000,
		native:   make(map[string]*big.Int),
		tokens:   make(map[string]*big.Int),
		confs:    make(map[string]blockchain.ConfirmationStatus),
		sigs:     make(map[*blockchain.Transaction]map[string]bool),
	}
}

func keyFor(address string) []byte { return []byte("key:" + address) }

func (a *fakeAdapter) setNative(addr string, v int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.native[addr] = big.NewInt(v)
}

func (a *fakeAdapter) setToken(addr, token string, v int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[addr+"|"+token] = big.NewInt(v)
}

func (a *fakeAdapter) setConfirmations(ref string, st blockchain.ConfirmationStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.confs[ref] = st
}

func (a *fakeAdapter) submissions() []*blockchain.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*blockchain.Transaction(nil), a.submitted...)
}

func (a *fakeAdapter) signatures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.sigs {
		n += len(s)
	}
	return n
}

func (a *fakeAdapter) Chain() string                { return a.name }
func (a *fakeAdapter) RequiredConfirmations() int64 { return a.required }
func (a *fakeAdapter) SelfPaysFee() bool            { return a.selfPays }

func (a *fakeAdapter) NativeBalance(_ context.Context, addr string) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.native[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (a *fakeAdapter) TokenBalance(ctx context.Context, addr, token string) (*big.Int, error) {
	if token == "" {
		return a.NativeBalance(ctx, addr)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.tokens[addr+"|"+token]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (a *fakeAdapter) EstimateFee(_ context.Context, _ blockchain.TransferRequest) (*big.Int, error) {
	return big.NewInt(a.fee), nil
}

func (a *fakeAdapter) BuildTransfer(_ context.Context, req blockchain.TransferRequest) (*blockchain.Transaction, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, blockchain.ErrInvalidAmount
	}
	amount := new(big.Int).Set(req.Amount)
	if req.DeductFee && req.Token == "" {
		if amount.Sub(amount, big.NewInt(a.fee)).Sign() <= 0 {
			return nil, blockchain.ErrInvalidAmount
		}
	}
	payer := req.FeePayer
	if payer == "" {
		payer = req.From
	}
	signers := []string{req.From}
	if payer != req.From {
		signers = append(signers, payer)
	}
	return &blockchain.Transaction{
		Chain:    a.name,
		From:     req.From,
		To:       req.To,
		FeePayer: payer,
		Token:    req.Token,
		Amount:   amount,
		Fee:      big.NewInt(a.fee),
		Signers:  signers,
	}, nil
}

func (a *fakeAdapter) Sign(_ context.Context, tx *blockchain.Transaction, privateKey []byte) (*blockchain.Transaction, error) {
	signer := strings.TrimPrefix(string(privateKey), "key:")
	if !tx.NeedsSigner(signer) {
		return nil, blockchain.ErrSignerMismatch
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sigs[tx] == nil {
		a.sigs[tx] = make(map[string]bool)
	}
	a.sigs[tx][signer] = true
	return tx, nil
}

func (a *fakeAdapter) Submit(_ context.Context, tx *blockchain.Transaction) (string, error) {
	if a.submitDelay > 0 {
		time.Sleep(a.submitDelay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range tx.Signers {
		if !a.sigs[tx][s] {
			return "", blockchain.ErrUnsignedTransaction
		}
	}
	if a.submitErr != nil {
		return "", a.submitErr
	}
	a.submitted = append(a.submitted, tx)
	return fmt.Sprintf("0xtx%d", len(a.submitted)), nil
}

func (a *fakeAdapter) Confirmations(_ context.Context, ref string) (blockchain.ConfirmationStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.confErr != nil {
		return blockchain.ConfirmationStatus{}, a.confErr
	}
	return a.confs[ref], nil
}

func (a *fakeAdapter) GenerateKey() (*blockchain.KeyPair, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys++
	addr := fmt.Sprintf("%s-addr-%d", a.name, a.keys)
	return &blockchain.KeyPair{
		Address:        addr,
		PrivateKey:     keyFor(addr),
		Scheme:         blockchain.SchemeSecp256k1,
		DerivationPath: "random/" + blockchain.SchemeSecp256k1,
	}, nil
}

func newTestRegistry(chains map[*fakeAdapter]entities.Chain) *blockchain.Registry {
	reg := blockchain.NewRegistry(nil)
	for adapter, chain := range chains {
		reg.RegisterAdapter(chain, adapter)
	}
	return reg
}

func evmChain() entities.Chain {
	return entities.Chain{
		Name:                  "ethereum",
		Type:                  entities.ChainTypeEVM,
		RequiredConfirmations: 12,
		TreasuryAddress:       "treasury-eth",
		NativeSymbol:          "ETH",
		NativeDecimals:        18,
		Assets:                []entities.Asset{{Symbol: "USDT", Token: "usdt-contract", Decimals: 6}},
	}
}

func solanaChain() entities.Chain {
	return entities.Chain{
		Name:                  "solana",
		Type:                  entities.ChainTypeSVM,
		RequiredConfirmations: 32,
		TreasuryAddress:       "treasury-sol",
		SponsorMinBalance:     decimal.NewFromInt(10_000_000),
		NativeSymbol:          "SOL",
		NativeDecimals:        9,
		Assets:                []entities.Asset{{Symbol: "USDC", Token: "usdc-mint", Decimals: 6}},
	}
}

// memDepositRepo is an in-memory OnchainDepositRepository with the same conditional update rules as the SQL one
type memDepositRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*entities.OnchainDeposit
	markErr error
	marks   int
}

func newMemDepositRepo(deps ...*entities.OnchainDeposit) *memDepositRepo {
	r := &memDepositRepo{items: make(map[uuid.UUID]*entities.OnchainDeposit)}
	for _, d := range deps {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		cp := *d
		r.items[d.ID] = &cp
	}
	return r
}

func (r *memDepositRepo) snapshot(id uuid.UUID) entities.OnchainDeposit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.items[id]
}

func (r *memDepositRepo) Create(_ context.Context, d *entities.OnchainDeposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.DepositAddressID == d.DepositAddressID && it.TxRef == d.TxRef {
			return domainerrors.ErrAlreadyExists
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	r.items[d.ID] = &cp
	return nil
}

func (r *memDepositRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.OnchainDeposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDepositRepo) GetByTxRef(_ context.Context, addressID uuid.UUID, txRef string) (*entities.OnchainDeposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.items {
		if d.DepositAddressID == addressID && d.TxRef == txRef {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (r *memDepositRepo) list(limit int, match func(*entities.OnchainDeposit) bool) []*entities.OnchainDeposit {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.OnchainDeposit
	for _, d := range r.items {
		if match(d) {
			cp := *d
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *memDepositRepo) ListByStatus(_ context.Context, statuses []entities.DepositStatus, limit int) ([]*entities.OnchainDeposit, error) {
	return r.list(limit, func(d *entities.OnchainDeposit) bool {
		for _, s := range statuses {
			if d.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *memDepositRepo) ListSweepable(_ context.Context, limit int) ([]*entities.OnchainDeposit, error) {
	return r.list(limit, func(d *entities.OnchainDeposit) bool {
		return d.Status == entities.DepositStatusConfirmed && !d.NeedsReview
	}), nil
}

func (r *memDepositRepo) ListSweepableByAddress(_ context.Context, addressID uuid.UUID, token string) ([]*entities.OnchainDeposit, error) {
	return r.list(0, func(d *entities.OnchainDeposit) bool {
		return d.DepositAddressID == addressID && d.Token == token &&
			d.Status == entities.DepositStatusConfirmed && !d.NeedsReview
	}), nil
}

func (r *memDepositRepo) ListByDepositAddresses(_ context.Context, ids []uuid.UUID, limit, _ int) ([]*entities.OnchainDeposit, int64, error) {
	out := r.list(limit, func(d *entities.OnchainDeposit) bool {
		for _, id := range ids {
			if d.DepositAddressID == id {
				return true
			}
		}
		return false
	})
	return out, int64(len(out)), nil
}

func (r *memDepositRepo) ListNeedsReview(_ context.Context, limit int) ([]*entities.OnchainDeposit, error) {
	return r.list(limit, func(d *entities.OnchainDeposit) bool { return d.NeedsReview }), nil
}

func (r *memDepositRepo) UpdateConfirmations(_ context.Context, id uuid.UUID, confirmations int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id].Confirmations = confirmations
	return nil
}

func (r *memDepositRepo) Transition(_ context.Context, id uuid.UUID, from []entities.DepositStatus, to entities.DepositStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.items[id]
	for _, s := range from {
		if d.Status == s {
			d.Status = to
			if to == entities.DepositStatusConfirmed {
				d.ConfirmedAt = null.TimeFrom(at)
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *memDepositRepo) MarkSwept(_ context.Context, ids []uuid.UUID, ref string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return 0, r.markErr
	}
	n := 0
	for _, id := range ids {
		d := r.items[id]
		if d == nil || d.Status != entities.DepositStatusConfirmed {
			continue
		}
		d.Status = entities.DepositStatusSwept
		d.SweepTxRef = null.StringFrom(ref)
		d.SweptAt = null.TimeFrom(at)
		n++
	}
	if n > 0 {
		r.marks++
	}
	return n, nil
}

func (r *memDepositRepo) RecordSweepFailure(_ context.Context, id uuid.UUID, lastError string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.items[id]
	d.SweepAttempts++
	d.LastError = null.StringFrom(lastError)
	return d.SweepAttempts, nil
}

func (r *memDepositRepo) FlagReview(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.items[id]
	d.NeedsReview = true
	d.ReviewReason = null.StringFrom(reason)
	return nil
}

func (r *memDepositRepo) ClearReview(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.items[id]
	d.NeedsReview = false
	d.ReviewReason = null.String{}
	d.SweepAttempts = 0
	return nil
}
