package blockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"offramp.backend/internal/domain/entities"
)

const (
	// bandwidth burn for a plain TRX transfer, rounded up
	tronNativeTransferFee int64 = 1_000_000
	// energy fee limit attached to TRC20 transfers
	tronTRC20FeeLimit int64 = 30_000_000
)

// tronClient is the subset of client.GrpcClient the adapter needs.
type tronClient interface {
	GetAccount(addr string) (*core.Account, error)
	TRC20ContractBalance(addr, contractAddress string) (*big.Int, error)
	Transfer(from, toAddress string, amount int64) (*api.TransactionExtention, error)
	TRC20Send(from, to, contract string, amount *big.Int, feeLimit int64) (*api.TransactionExtention, error)
	Broadcast(tx *core.Transaction) (*api.Return, error)
	GetTransactionInfoByID(id string) (*core.TransactionInfo, error)
	GetNowBlock() (*api.BlockExtention, error)
}

var dialTronClient = func(grpcURL, apiKey string) (tronClient, error) {
	c := client.NewGrpcClient(grpcURL)
	if apiKey != "" {
		c.SetAPIKey(apiKey)
	}
	if err := c.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, err
	}
	return c, nil
}

// TronAdapter implements ChainAdapter for TRON. The sender burns its own bandwidth and energy.
type TronAdapter struct {
	chain  entities.Chain
	client tronClient
}

// NewTronAdapter creates an adapter over a TRON gRPC client
func NewTronAdapter(chain entities.Chain, c tronClient) *TronAdapter {
	return &TronAdapter{chain: chain, client: c}
}

func (a *TronAdapter) Chain() string                { return a.chain.Name }
func (a *TronAdapter) RequiredConfirmations() int64 { return a.chain.RequiredConfirmations }
func (a *TronAdapter) SelfPaysFee() bool            { return true }

func (a *TronAdapter) NativeBalance(_ context.Context, addr string) (*big.Int, error) {
	acct, err := a.client.GetAccount(addr)
	if err != nil {
		// unactivated accounts are reported as missing
		if isTronNotFound(err) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return big.NewInt(acct.Balance), nil
}

func (a *TronAdapter) TokenBalance(ctx context.Context, addr, contract string) (*big.Int, error) {
	if contract == "" {
		return a.NativeBalance(ctx, addr)
	}
	bal, err := a.client.TRC20ContractBalance(addr, contract)
	if err != nil {
		return nil, fmt.Errorf("failed to get trc20 balance: %w", err)
	}
	return bal, nil
}

func (a *TronAdapter) EstimateFee(_ context.Context, req TransferRequest) (*big.Int, error) {
	if req.Token == "" {
		return big.NewInt(tronNativeTransferFee), nil
	}
	return big.NewInt(tronTRC20FeeLimit), nil
}

func (a *TronAdapter) BuildTransfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	for _, s := range []string{req.From, req.To} {
		if _, err := address.Base58ToAddress(s); err != nil {
			return nil, fmt.Errorf("invalid TRON address %s: %w", s, err)
		}
	}

	fee, err := a.EstimateFee(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate fee: %w", err)
	}
	amount := new(big.Int).Set(req.Amount)
	if req.DeductFee && req.Token == "" {
		if amount.Sub(amount, fee).Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s does not cover fee %s", ErrInvalidAmount, req.Amount, fee)
		}
	}

	var ext *api.TransactionExtention
	if req.Token == "" {
		if !amount.IsInt64() {
			return nil, ErrInvalidAmount
		}
		ext, err = a.client.Transfer(req.From, req.To, amount.Int64())
	} else {
		ext, err = a.client.TRC20Send(req.From, req.To, req.Token, req.Amount, tronTRC20FeeLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if ext == nil || ext.Transaction == nil {
		return nil, fmt.Errorf("transaction creation returned empty result")
	}
	if ext.Result != nil && ext.Result.Code != 0 {
		return nil, fmt.Errorf("transaction creation failed: %s", string(ext.Result.Message))
	}

	return &Transaction{
		Chain:    a.chain.Name,
		From:     req.From,
		To:       req.To,
		FeePayer: req.From,
		Token:    req.Token,
		Amount:   amount,
		Fee:      fee,
		Signers:  []string{req.From},
		payload:  ext.Transaction,
	}, nil
}

func (a *TronAdapter) Sign(_ context.Context, tx *Transaction, privateKey []byte) (*Transaction, error) {
	raw, ok := tx.payload.(*core.Transaction)
	if !ok {
		return nil, ErrForeignTransaction
	}
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if address.PubkeyToAddress(key.PublicKey).String() != tx.From {
		return nil, ErrSignerMismatch
	}

	hash, err := tronTxHash(raw)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	raw.Signature = [][]byte{sig}
	return tx, nil
}

func (a *TronAdapter) Submit(_ context.Context, tx *Transaction) (string, error) {
	raw, ok := tx.payload.(*core.Transaction)
	if !ok {
		return "", ErrForeignTransaction
	}
	if len(raw.Signature) == 0 {
		return "", ErrUnsignedTransaction
	}
	hash, err := tronTxHash(raw)
	if err != nil {
		return "", err
	}

	res, err := a.client.Broadcast(raw)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast: %w", err)
	}
	if !res.Result {
		return "", fmt.Errorf("broadcast failed: %s", string(res.Message))
	}
	return hex.EncodeToString(hash), nil
}

func (a *TronAdapter) Confirmations(_ context.Context, txRef string) (ConfirmationStatus, error) {
	info, err := a.client.GetTransactionInfoByID(txRef)
	if err != nil {
		if isTronNotFound(err) {
			return ConfirmationStatus{}, nil
		}
		return ConfirmationStatus{}, fmt.Errorf("failed to get transaction info: %w", err)
	}
	if info == nil || info.BlockNumber == 0 {
		return ConfirmationStatus{}, nil
	}
	if info.Result == core.TransactionInfo_FAILED {
		return ConfirmationStatus{Found: true, Failed: true}, nil
	}
	if info.Receipt != nil {
		switch info.Receipt.Result {
		case core.Transaction_Result_DEFAULT, core.Transaction_Result_SUCCESS:
		default:
			return ConfirmationStatus{Found: true, Failed: true}, nil
		}
	}

	head, err := a.client.GetNowBlock()
	if err != nil {
		return ConfirmationStatus{}, fmt.Errorf("failed to get current block: %w", err)
	}
	status := ConfirmationStatus{Found: true}
	if head != nil && head.BlockHeader != nil && head.BlockHeader.RawData != nil {
		if n := head.BlockHeader.RawData.Number; n >= info.BlockNumber {
			status.Count = n - info.BlockNumber + 1
		}
	}
	return status, nil
}

func (a *TronAdapter) GenerateKey() (*KeyPair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Address:        address.PubkeyToAddress(key.PublicKey).String(),
		PrivateKey:     crypto.FromECDSA(key),
		Scheme:         SchemeSecp256k1,
		DerivationPath: "random/" + SchemeSecp256k1,
	}, nil
}

func tronTxHash(tx *core.Transaction) ([]byte, error) {
	rawData, err := proto.Marshal(tx.GetRawData())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw data: %w", err)
	}
	hash := sha256.Sum256(rawData)
	return hash[:], nil
}

func isTronNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
