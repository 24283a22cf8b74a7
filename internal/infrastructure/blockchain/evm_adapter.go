package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"offramp.backend/internal/domain/entities"
)

const (
	evmNativeTransferGas uint64 = 21000
	evmTokenTransferGas  uint64 = 65000
)

// transfer(address,uint256) selector: 0xa9059cbb
var erc20TransferSelector = common.Hex2Bytes("a9059cbb")

// evmBackend is the subset of EVMClient the adapter needs.
type evmBackend interface {
	ChainID() *big.Int
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMAdapter implements ChainAdapter for EVM chains. The sender always pays gas.
type EVMAdapter struct {
	chain   entities.Chain
	backend evmBackend
}

// NewEVMAdapter creates an adapter over an EVM RPC backend
func NewEVMAdapter(chain entities.Chain, backend evmBackend) *EVMAdapter {
	return &EVMAdapter{chain: chain, backend: backend}
}

func (a *EVMAdapter) Chain() string                { return a.chain.Name }
func (a *EVMAdapter) RequiredConfirmations() int64 { return a.chain.RequiredConfirmations }
func (a *EVMAdapter) SelfPaysFee() bool            { return true }

func (a *EVMAdapter) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return a.backend.GetBalance(ctx, address)
}

func (a *EVMAdapter) TokenBalance(ctx context.Context, address, token string) (*big.Int, error) {
	if token == "" {
		return a.NativeBalance(ctx, address)
	}
	return a.backend.GetTokenBalance(ctx, token, address)
}

func (a *EVMAdapter) EstimateFee(ctx context.Context, req TransferRequest) (*big.Int, error) {
	feeCap, _, err := a.feeCaps(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gasLimitFor(req.Token))), nil
}

func (a *EVMAdapter) BuildTransfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(req.From) || !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("invalid evm address")
	}

	nonce, err := a.backend.PendingNonce(ctx, req.From)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	feeCap, tip, err := a.feeCaps(ctx)
	if err != nil {
		return nil, err
	}

	gas := gasLimitFor(req.Token)
	fee := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gas))
	to := common.HexToAddress(req.To)
	value := new(big.Int).Set(req.Amount)
	if req.DeductFee && req.Token == "" {
		// the fee comes from the same caps encoded below
		if value.Sub(value, fee).Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s does not cover fee %s", ErrInvalidAmount, req.Amount, fee)
		}
	}
	var data []byte
	if req.Token != "" {
		if !common.IsHexAddress(req.Token) {
			return nil, fmt.Errorf("invalid token address %s", req.Token)
		}
		data = erc20TransferData(to, req.Amount)
		to = common.HexToAddress(req.Token)
		value = big.NewInt(0)
	}

	inner := &types.DynamicFeeTx{
		ChainID:   a.backend.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	}

	return &Transaction{
		Chain:    a.chain.Name,
		From:     common.HexToAddress(req.From).Hex(),
		To:       common.HexToAddress(req.To).Hex(),
		FeePayer: common.HexToAddress(req.From).Hex(),
		Token:    req.Token,
		Amount:   amountSent(req, value),
		Fee:      fee,
		Signers:  []string{common.HexToAddress(req.From).Hex()},
		payload:  types.NewTx(inner),
	}, nil
}

func (a *EVMAdapter) Sign(_ context.Context, tx *Transaction, privateKey []byte) (*Transaction, error) {
	raw, ok := tx.payload.(*types.Transaction)
	if !ok {
		return nil, ErrForeignTransaction
	}
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if !strings.EqualFold(crypto.PubkeyToAddress(key.PublicKey).Hex(), tx.From) {
		return nil, ErrSignerMismatch
	}

	signed, err := types.SignTx(raw, types.LatestSignerForChainID(a.backend.ChainID()), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.payload = signed
	return tx, nil
}

func (a *EVMAdapter) Submit(ctx context.Context, tx *Transaction) (string, error) {
	raw, ok := tx.payload.(*types.Transaction)
	if !ok {
		return "", ErrForeignTransaction
	}
	if _, r, _ := raw.RawSignatureValues(); r == nil || r.Sign() == 0 {
		return "", ErrUnsignedTransaction
	}
	if err := a.backend.SendTransaction(ctx, raw); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return raw.Hash().Hex(), nil
}

func (a *EVMAdapter) Confirmations(ctx context.Context, txRef string) (ConfirmationStatus, error) {
	receipt, err := a.backend.GetTransactionReceipt(ctx, txRef)
	if errors.Is(err, ethereum.NotFound) {
		return ConfirmationStatus{}, nil
	}
	if err != nil {
		return ConfirmationStatus{}, fmt.Errorf("failed to get receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return ConfirmationStatus{Found: true, Failed: true}, nil
	}

	head, err := a.backend.GetBlockNumber(ctx)
	if err != nil {
		return ConfirmationStatus{}, fmt.Errorf("failed to get block number: %w", err)
	}
	status := ConfirmationStatus{Found: true}
	if receipt.BlockNumber != nil && head >= receipt.BlockNumber.Uint64() {
		status.Count = int64(head-receipt.BlockNumber.Uint64()) + 1
	}
	return status, nil
}

func (a *EVMAdapter) GenerateKey() (*KeyPair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Address:        crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey:     crypto.FromECDSA(key),
		Scheme:         SchemeSecp256k1,
		DerivationPath: "random/" + SchemeSecp256k1,
	}, nil
}

// feeCaps returns the EIP-1559 fee cap and tip.
func (a *EVMAdapter) feeCaps(ctx context.Context) (*big.Int, *big.Int, error) {
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	tip, err := a.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	return new(big.Int).Add(gasPrice, tip), tip, nil
}

// amountSent is what reaches To: the tx value for native transfers, the token amount otherwise.
func amountSent(req TransferRequest, value *big.Int) *big.Int {
	if req.Token == "" {
		return new(big.Int).Set(value)
	}
	return new(big.Int).Set(req.Amount)
}

func gasLimitFor(token string) uint64 {
	if token == "" {
		return evmNativeTransferGas
	}
	return evmTokenTransferGas
}

func erc20TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, erc20TransferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}
