package blockchain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"offramp.backend/internal/domain/entities"
)

func newTestEVMAdapter(t *testing.T) *EVMAdapter {
	t.Helper()
	srv := newEVMRPCServer(t)
	t.Cleanup(srv.Close)

	client, err := NewEVMClient(srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return NewEVMAdapter(entities.Chain{Name: "base", Type: entities.ChainTypeEVM, RequiredConfirmations: 12}, client)
}

func TestEVMAdapter_NativeTransferRoundTrip(t *testing.T) {
	a := newTestEVMAdapter(t)
	ctx := context.Background()
	require.True(t, a.SelfPaysFee())
	require.Equal(t, int64(12), a.RequiredConfirmations())

	kp, err := a.GenerateKey()
	require.NoError(t, err)
	require.Equal(t, SchemeSecp256k1, kp.Scheme)
	require.True(t, common.IsHexAddress(kp.Address))

	tx, err := a.BuildTransfer(ctx, TransferRequest{
		From:   kp.Address,
		To:     "0x4444444444444444444444444444444444444444",
		Amount: big.NewInt(1000),
	})
	require.NoError(t, err)
	// (1 gwei + 0.1 gwei) * 21000
	require.Equal(t, "23100000000000", tx.Fee.String())
	require.Equal(t, []string{kp.Address}, tx.Signers)

	_, err = a.Submit(ctx, tx)
	require.ErrorIs(t, err, ErrUnsignedTransaction)

	_, err = a.Sign(ctx, tx, kp.PrivateKey)
	require.NoError(t, err)
	raw := tx.payload.(*types.Transaction)
	require.Equal(t, uint64(5), raw.Nonce())
	require.Equal(t, uint64(21000), raw.Gas())

	hash, err := a.Submit(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, raw.Hash().Hex(), hash)
	require.Len(t, sent, 1)
}

// risingGasBackend returns a higher gas price on every call.
type risingGasBackend struct {
	evmBackend
	calls int64
}

func (b *risingGasBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.calls++
	return big.NewInt(b.calls * 1_000_000_000), nil
}

func TestEVMAdapter_DeductFeeUsesEncodedFeeCap(t *testing.T) {
	base := newTestEVMAdapter(t)
	backend := &risingGasBackend{evmBackend: base.backend}
	a := NewEVMAdapter(base.chain, backend)
	ctx := context.Background()

	balance := big.NewInt(1_000_000_000_000_000)
	estimate, err := a.EstimateFee(ctx, TransferRequest{Amount: balance})
	require.NoError(t, err)

	tx, err := a.BuildTransfer(ctx, TransferRequest{
		From:      "0x3333333333333333333333333333333333333333",
		To:        "0x4444444444444444444444444444444444444444",
		Amount:    balance,
		DeductFee: true,
	})
	require.NoError(t, err)
	raw := tx.payload.(*types.Transaction)

	// the price moved between the estimate and the build
	require.Equal(t, 1, tx.Fee.Cmp(estimate))
	worstCase := new(big.Int).Mul(raw.GasFeeCap(), new(big.Int).SetUint64(raw.Gas()))
	require.Equal(t, worstCase.String(), tx.Fee.String())
	spent := new(big.Int).Add(raw.Value(), worstCase)
	require.Equal(t, balance.String(), spent.String())
	require.Equal(t, raw.Value().String(), tx.Amount.String())

	// a balance that cannot cover the encoded fee is rejected
	_, err = a.BuildTransfer(ctx, TransferRequest{
		From:      "0x3333333333333333333333333333333333333333",
		To:        "0x4444444444444444444444444444444444444444",
		Amount:    big.NewInt(21000),
		DeductFee: true,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestEVMAdapter_TokenTransferEncodesERC20Call(t *testing.T) {
	a := newTestEVMAdapter(t)
	token := "0x5555555555555555555555555555555555555555"
	to := "0x4444444444444444444444444444444444444444"

	tx, err := a.BuildTransfer(context.Background(), TransferRequest{
		From:   "0x3333333333333333333333333333333333333333",
		To:     to,
		Token:  token,
		Amount: big.NewInt(1000),
	})
	require.NoError(t, err)
	raw := tx.payload.(*types.Transaction)
	require.Equal(t, common.HexToAddress(token), *raw.To())
	require.Equal(t, int64(0), raw.Value().Int64())
	require.Equal(t, uint64(65000), raw.Gas())
	require.Equal(t, "a9059cbb", common.Bytes2Hex(raw.Data()[:4]))
	require.True(t, strings.HasSuffix(common.Bytes2Hex(raw.Data()), "03e8"))
}

func TestEVMAdapter_SignRejectsForeignKey(t *testing.T) {
	a := newTestEVMAdapter(t)
	tx, err := a.BuildTransfer(context.Background(), TransferRequest{
		From:   "0x3333333333333333333333333333333333333333",
		To:     "0x4444444444444444444444444444444444444444",
		Amount: big.NewInt(1),
	})
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = a.Sign(context.Background(), tx, crypto.FromECDSA(key))
	require.ErrorIs(t, err, ErrSignerMismatch)

	_, err = a.Sign(context.Background(), &Transaction{}, crypto.FromECDSA(key))
	require.ErrorIs(t, err, ErrForeignTransaction)
}

func TestEVMAdapter_BuildTransferValidation(t *testing.T) {
	a := newTestEVMAdapter(t)
	_, err := a.BuildTransfer(context.Background(), TransferRequest{From: "0x3333333333333333333333333333333333333333", To: "0x4444444444444444444444444444444444444444"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = a.BuildTransfer(context.Background(), TransferRequest{From: "nope", To: "0x4444444444444444444444444444444444444444", Amount: big.NewInt(1)})
	require.Error(t, err)
}

func TestEVMAdapter_Confirmations(t *testing.T) {
	a := newTestEVMAdapter(t)

	st, err := a.Confirmations(context.Background(), "0x1111111111111111111111111111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.True(t, st.Found)
	require.False(t, st.Failed)
	// head 42, receipt block 1
	require.Equal(t, int64(42), st.Count)

	missing, err := a.Confirmations(context.Background(), "0xdead")
	require.NoError(t, err)
	require.False(t, missing.Found)
}

func TestEVMAdapter_Balances(t *testing.T) {
	a := newTestEVMAdapter(t)
	native, err := a.TokenBalance(context.Background(), "0x3333333333333333333333333333333333333333", "")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", native.String())

	token, err := a.TokenBalance(context.Background(), "0x3333333333333333333333333333333333333333", "0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	require.Equal(t, "1000", token.String())

	fee, err := a.EstimateFee(context.Background(), TransferRequest{Token: "0x4444444444444444444444444444444444444444"})
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(1_100_000_000), big.NewInt(65000)).String(), fee.String())
}
