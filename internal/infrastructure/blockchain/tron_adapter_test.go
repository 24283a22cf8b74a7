package blockchain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/stretchr/testify/require"
	"offramp.backend/internal/domain/entities"
)

type fakeTron struct {
	balance    int64
	accountErr error
	trc20      *big.Int
	ext        *api.TransactionExtention
	lastFee    int64
	lastAmount int64
	transfers  int
	broadcast  *api.Return
	broadcasts int
	info       *core.TransactionInfo
	infoErr    error
	head       int64
}

func (f *fakeTron) GetAccount(string) (*core.Account, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &core.Account{Balance: f.balance}, nil
}

func (f *fakeTron) TRC20ContractBalance(string, string) (*big.Int, error) { return f.trc20, nil }

func (f *fakeTron) Transfer(_, _ string, amount int64) (*api.TransactionExtention, error) {
	f.transfers++
	f.lastAmount = amount
	return f.ext, nil
}

func (f *fakeTron) TRC20Send(_, _, _ string, _ *big.Int, feeLimit int64) (*api.TransactionExtention, error) {
	f.lastFee = feeLimit
	return f.ext, nil
}

func (f *fakeTron) Broadcast(*core.Transaction) (*api.Return, error) {
	f.broadcasts++
	return f.broadcast, nil
}

func (f *fakeTron) GetTransactionInfoByID(string) (*core.TransactionInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeTron) GetNowBlock() (*api.BlockExtention, error) {
	return &api.BlockExtention{BlockHeader: &core.BlockHeader{RawData: &core.BlockHeaderRaw{Number: f.head}}}, nil
}

func newTronTx() *api.TransactionExtention {
	return &api.TransactionExtention{
		Transaction: &core.Transaction{RawData: &core.TransactionRaw{Timestamp: 1700000000000, Expiration: 1700000060000}},
		Result:      &api.Return{Result: true},
	}
}

func TestTronAdapter_TransferSignSubmit(t *testing.T) {
	fake := &fakeTron{ext: newTronTx(), broadcast: &api.Return{Result: true}}
	a := NewTronAdapter(entities.Chain{Name: "tron", RequiredConfirmations: 19}, fake)
	ctx := context.Background()

	from, err := a.GenerateKey()
	require.NoError(t, err)
	to, err := a.GenerateKey()
	require.NoError(t, err)
	require.Equal(t, byte('T'), from.Address[0])

	tx, err := a.BuildTransfer(ctx, TransferRequest{From: from.Address, To: to.Address, Amount: big.NewInt(5_000_000)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(tronNativeTransferFee), tx.Fee)

	_, err = a.Submit(ctx, tx)
	require.ErrorIs(t, err, ErrUnsignedTransaction)

	_, err = a.Sign(ctx, tx, to.PrivateKey)
	require.ErrorIs(t, err, ErrSignerMismatch)

	_, err = a.Sign(ctx, tx, from.PrivateKey)
	require.NoError(t, err)

	raw := tx.payload.(*core.Transaction)
	hash, err := tronTxHash(raw)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(hash, raw.Signature[0])
	require.NoError(t, err)
	require.Equal(t, from.Address, address.PubkeyToAddress(*pub).String())

	txid, err := a.Submit(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(hash), txid)
	require.Equal(t, 1, fake.broadcasts)
}

func TestTronAdapter_DeductFeeSendsNetAmount(t *testing.T) {
	fake := &fakeTron{ext: newTronTx()}
	a := NewTronAdapter(entities.Chain{Name: "tron", RequiredConfirmations: 19}, fake)
	ctx := context.Background()
	from, err := a.GenerateKey()
	require.NoError(t, err)
	to, err := a.GenerateKey()
	require.NoError(t, err)

	tx, err := a.BuildTransfer(ctx, TransferRequest{From: from.Address, To: to.Address, Amount: big.NewInt(5_000_000), DeductFee: true})
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000-tronNativeTransferFee), fake.lastAmount)
	require.Equal(t, int64(5_000_000-tronNativeTransferFee), tx.Amount.Int64())
	require.Equal(t, big.NewInt(tronNativeTransferFee), tx.Fee)

	_, err = a.BuildTransfer(ctx, TransferRequest{From: from.Address, To: to.Address, Amount: big.NewInt(tronNativeTransferFee), DeductFee: true})
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Equal(t, 1, fake.transfers)

	// token amounts are never reduced
	tx, err = a.BuildTransfer(ctx, TransferRequest{From: from.Address, To: to.Address, Token: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", Amount: big.NewInt(10), DeductFee: true})
	require.NoError(t, err)
	require.Equal(t, int64(10), tx.Amount.Int64())
}

func TestTronAdapter_TokenTransferUsesFeeLimit(t *testing.T) {
	fake := &fakeTron{ext: newTronTx()}
	a := NewTronAdapter(entities.Chain{Name: "tron"}, fake)
	from, _ := a.GenerateKey()
	to, _ := a.GenerateKey()

	tx, err := a.BuildTransfer(context.Background(), TransferRequest{From: from.Address, To: to.Address, Token: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", Amount: big.NewInt(10)})
	require.NoError(t, err)
	require.Equal(t, tronTRC20FeeLimit, fake.lastFee)
	require.Equal(t, big.NewInt(tronTRC20FeeLimit), tx.Fee)
}

func TestTronAdapter_BuildFailures(t *testing.T) {
	fake := &fakeTron{ext: &api.TransactionExtention{
		Transaction: &core.Transaction{RawData: &core.TransactionRaw{}},
		Result:      &api.Return{Code: api.Return_SIGERROR, Message: []byte("balance is not sufficient")},
	}}
	a := NewTronAdapter(entities.Chain{Name: "tron"}, fake)
	from, _ := a.GenerateKey()
	to, _ := a.GenerateKey()

	_, err := a.BuildTransfer(context.Background(), TransferRequest{From: from.Address, To: to.Address, Amount: big.NewInt(1)})
	require.ErrorContains(t, err, "balance is not sufficient")

	_, err = a.BuildTransfer(context.Background(), TransferRequest{From: "not-an-address", To: to.Address, Amount: big.NewInt(1)})
	require.Error(t, err)

	_, err = a.BuildTransfer(context.Background(), TransferRequest{From: from.Address, To: to.Address, Amount: big.NewInt(0)})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTronAdapter_BroadcastRejected(t *testing.T) {
	fake := &fakeTron{ext: newTronTx(), broadcast: &api.Return{Result: false, Message: []byte("SIGERROR")}}
	a := NewTronAdapter(entities.Chain{Name: "tron"}, fake)
	from, _ := a.GenerateKey()
	to, _ := a.GenerateKey()

	tx, err := a.BuildTransfer(context.Background(), TransferRequest{From: from.Address, To: to.Address, Amount: big.NewInt(1)})
	require.NoError(t, err)
	_, err = a.Sign(context.Background(), tx, from.PrivateKey)
	require.NoError(t, err)
	_, err = a.Submit(context.Background(), tx)
	require.ErrorContains(t, err, "SIGERROR")
}

func TestTronAdapter_Confirmations(t *testing.T) {
	fake := &fakeTron{head: 120}
	a := NewTronAdapter(entities.Chain{Name: "tron"}, fake)
	ctx := context.Background()

	fake.infoErr = errors.New("transaction info not found")
	st, err := a.Confirmations(ctx, "abc")
	require.NoError(t, err)
	require.False(t, st.Found)

	fake.infoErr = nil
	fake.info = &core.TransactionInfo{}
	st, err = a.Confirmations(ctx, "abc")
	require.NoError(t, err)
	require.False(t, st.Found)

	fake.info = &core.TransactionInfo{BlockNumber: 100, Receipt: &core.ResourceReceipt{Result: core.Transaction_Result_SUCCESS}}
	st, err = a.Confirmations(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, ConfirmationStatus{Found: true, Count: 21}, st)

	fake.info = &core.TransactionInfo{BlockNumber: 100, Receipt: &core.ResourceReceipt{Result: core.Transaction_Result_REVERT}}
	st, err = a.Confirmations(ctx, "abc")
	require.NoError(t, err)
	require.True(t, st.Failed)

	fake.info = &core.TransactionInfo{BlockNumber: 100, Result: core.TransactionInfo_FAILED}
	st, err = a.Confirmations(ctx, "abc")
	require.NoError(t, err)
	require.True(t, st.Failed)

	fake.infoErr = errors.New("connection reset")
	_, err = a.Confirmations(ctx, "abc")
	require.Error(t, err)
}

func TestTronAdapter_Balances(t *testing.T) {
	fake := &fakeTron{balance: 42, trc20: big.NewInt(7)}
	a := NewTronAdapter(entities.Chain{Name: "tron"}, fake)

	native, err := a.NativeBalance(context.Background(), "T")
	require.NoError(t, err)
	require.Equal(t, int64(42), native.Int64())

	token, err := a.TokenBalance(context.Background(), "T", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	require.NoError(t, err)
	require.Equal(t, int64(7), token.Int64())

	fake.accountErr = errors.New("account not found")
	native, err = a.NativeBalance(context.Background(), "T")
	require.NoError(t, err)
	require.Equal(t, int64(0), native.Int64())
}
