package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"offramp.backend/internal/domain/entities"
)

const (
	solanaLamportsPerSignature uint64 = 5000
	// rent-exempt minimum for a 165 byte SPL token account
	solanaTokenAccountRent uint64 = 2039280
)

// solanaRPC is the subset of rpc.Client the adapter needs.
type solanaRPC interface {
	GetBalance(ctx context.Context, publicKey solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, transaction *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaAdapter implements ChainAdapter for Solana. Fees may be paid by a separate fee payer.
type SolanaAdapter struct {
	chain entities.Chain
	rpc   solanaRPC
}

// NewSolanaAdapter creates an adapter over a Solana RPC client
func NewSolanaAdapter(chain entities.Chain, client solanaRPC) *SolanaAdapter {
	return &SolanaAdapter{chain: chain, rpc: client}
}

func (a *SolanaAdapter) Chain() string                { return a.chain.Name }
func (a *SolanaAdapter) RequiredConfirmations() int64 { return a.chain.RequiredConfirmations }
func (a *SolanaAdapter) SelfPaysFee() bool            { return false }

func (a *SolanaAdapter) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid solana address: %w", err)
	}
	res, err := a.rpc.GetBalance(ctx, owner, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return new(big.Int).SetUint64(res.Value), nil
}

func (a *SolanaAdapter) TokenBalance(ctx context.Context, address, mint string) (*big.Int, error) {
	if mint == "" {
		return a.NativeBalance(ctx, address)
	}
	ata, err := associatedAccount(address, mint)
	if err != nil {
		return nil, err
	}
	exists, err := a.accountExists(ctx, ata)
	if err != nil {
		return nil, err
	}
	if !exists {
		return big.NewInt(0), nil
	}

	res, err := a.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	if res.Value == nil {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(res.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", res.Value.Amount)
	}
	return amount, nil
}

func (a *SolanaAdapter) EstimateFee(ctx context.Context, req TransferRequest) (*big.Int, error) {
	signatures := uint64(1)
	if req.FeePayer != "" && req.FeePayer != req.From {
		signatures = 2
	}
	fee := new(big.Int).SetUint64(signatures * solanaLamportsPerSignature)
	if req.Token == "" {
		return fee, nil
	}

	ata, err := associatedAccount(req.To, req.Token)
	if err != nil {
		return nil, err
	}
	exists, err := a.accountExists(ctx, ata)
	if err != nil {
		return nil, err
	}
	if !exists {
		fee.Add(fee, new(big.Int).SetUint64(solanaTokenAccountRent))
	}
	return fee, nil
}

func (a *SolanaAdapter) BuildTransfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	if !req.Amount.IsUint64() {
		return nil, ErrInvalidAmount
	}
	from, err := solana.PublicKeyFromBase58(req.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	to, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	payer := from
	if req.FeePayer != "" {
		if payer, err = solana.PublicKeyFromBase58(req.FeePayer); err != nil {
			return nil, fmt.Errorf("invalid fee payer address: %w", err)
		}
	}

	var (
		instructions []solana.Instruction
		createsATA   bool
	)
	amount := req.Amount.Uint64()
	if req.Token == "" {
		if req.DeductFee && payer.Equals(from) {
			// a native transfer paid by its sender carries one signature
			if amount <= solanaLamportsPerSignature {
				return nil, fmt.Errorf("%w: %d does not cover fee %d", ErrInvalidAmount, amount, solanaLamportsPerSignature)
			}
			amount -= solanaLamportsPerSignature
		}
		instructions = append(instructions, system.NewTransferInstruction(amount, from, to).Build())
	} else {
		mint, err := solana.PublicKeyFromBase58(req.Token)
		if err != nil {
			return nil, fmt.Errorf("invalid mint address: %w", err)
		}
		source, _, err := solana.FindAssociatedTokenAddress(from, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive source token account: %w", err)
		}
		dest, _, err := solana.FindAssociatedTokenAddress(to, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive destination token account: %w", err)
		}
		exists, err := a.accountExists(ctx, dest)
		if err != nil {
			return nil, err
		}
		if !exists {
			createsATA = true
			instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(payer, to, mint).Build())
		}
		instructions = append(instructions, token.NewTransferInstruction(req.Amount.Uint64(), source, dest, from, nil).Build())
	}

	blockhash, err := a.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}
	raw, err := solana.NewTransaction(instructions, blockhash.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	signerKeys := raw.Message.AccountKeys[:raw.Message.Header.NumRequiredSignatures]
	signers := make([]string, 0, len(signerKeys))
	for _, k := range signerKeys {
		signers = append(signers, k.String())
	}
	fee := new(big.Int).SetUint64(uint64(len(signers)) * solanaLamportsPerSignature)
	if createsATA {
		fee.Add(fee, new(big.Int).SetUint64(solanaTokenAccountRent))
	}

	return &Transaction{
		Chain:               a.chain.Name,
		From:                from.String(),
		To:                  to.String(),
		FeePayer:            payer.String(),
		Token:               req.Token,
		Amount:              new(big.Int).SetUint64(amount),
		Fee:                 fee,
		CreatesTokenAccount: createsATA,
		Signers:             signers,
		payload:             raw,
	}, nil
}

// Sign adds the signature for the key's signer slot, leaving other slots untouched.
func (a *SolanaAdapter) Sign(_ context.Context, tx *Transaction, privateKey []byte) (*Transaction, error) {
	raw, ok := tx.payload.(*solana.Transaction)
	if !ok {
		return nil, ErrForeignTransaction
	}
	if len(privateKey) != 64 {
		return nil, fmt.Errorf("invalid ed25519 private key length %d", len(privateKey))
	}
	key := solana.PrivateKey(privateKey)
	pub := key.PublicKey()
	if !tx.NeedsSigner(pub.String()) {
		return nil, ErrSignerMismatch
	}

	_, err := raw.PartialSign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

func (a *SolanaAdapter) Submit(ctx context.Context, tx *Transaction) (string, error) {
	raw, ok := tx.payload.(*solana.Transaction)
	if !ok {
		return "", ErrForeignTransaction
	}
	if len(raw.Signatures) != int(raw.Message.Header.NumRequiredSignatures) {
		return "", ErrUnsignedTransaction
	}
	for _, sig := range raw.Signatures {
		if sig.IsZero() {
			return "", ErrUnsignedTransaction
		}
	}

	sig, err := a.rpc.SendTransaction(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig.String(), nil
}

// Confirmations reports a finalized signature as fully confirmed.
func (a *SolanaAdapter) Confirmations(ctx context.Context, txRef string) (ConfirmationStatus, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return ConfirmationStatus{}, fmt.Errorf("invalid signature: %w", err)
	}
	res, err := a.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return ConfirmationStatus{}, fmt.Errorf("failed to get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return ConfirmationStatus{}, nil
	}

	st := res.Value[0]
	if st.Err != nil {
		return ConfirmationStatus{Found: true, Failed: true}, nil
	}
	status := ConfirmationStatus{Found: true}
	required := a.chain.RequiredConfirmations
	switch {
	case st.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
		status.Count = required
	case st.Confirmations != nil:
		status.Count = int64(*st.Confirmations)
		if status.Count >= required {
			status.Count = required - 1
		}
	}
	return status, nil
}

func (a *SolanaAdapter) GenerateKey() (*KeyPair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Address:        key.PublicKey().String(),
		PrivateKey:     []byte(key),
		Scheme:         SchemeEd25519,
		DerivationPath: "random/" + SchemeEd25519,
	}, nil
}

func (a *SolanaAdapter) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := a.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
	return true, nil
}

func associatedAccount(owner, mint string) (solana.PublicKey, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid solana address: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint address: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account: %w", err)
	}
	return ata, nil
}
