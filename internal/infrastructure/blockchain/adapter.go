package blockchain

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrUnsignedTransaction is returned by Submit when a required signature is missing.
	ErrUnsignedTransaction = errors.New("transaction is missing required signatures")
	// ErrSignerMismatch is returned by Sign when the key signs for none of the transaction's signers.
	ErrSignerMismatch = errors.New("private key does not match any transaction signer")
	// ErrInvalidAmount is returned for zero, negative, or out of range transfer amounts.
	ErrInvalidAmount = errors.New("invalid transfer amount")
	// ErrForeignTransaction is returned when a transaction built by another adapter is passed in.
	ErrForeignTransaction = errors.New("transaction was not built by this adapter")
)

// Key schemes
const (
	SchemeSecp256k1 = "secp256k1"
	SchemeEd25519   = "ed25519"
)

// ChainAdapter is the uniform read/write interface over one chain.
type ChainAdapter interface {
	Chain() string
	RequiredConfirmations() int64
	// SelfPaysFee reports whether the sender always pays its own fee in the native coin.
	SelfPaysFee() bool

	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	// TokenBalance returns zero when the owner has no token account yet.
	TokenBalance(ctx context.Context, address, token string) (*big.Int, error)
	EstimateFee(ctx context.Context, req TransferRequest) (*big.Int, error)

	BuildTransfer(ctx context.Context, req TransferRequest) (*Transaction, error)
	Sign(ctx context.Context, tx *Transaction, privateKey []byte) (*Transaction, error)
	Submit(ctx context.Context, tx *Transaction) (string, error)
	Confirmations(ctx context.Context, txRef string) (ConfirmationStatus, error)

	GenerateKey() (*KeyPair, error)
}

// TransferRequest describes a single-asset transfer. Empty Token means the native coin.
type TransferRequest struct {
	From     string
	To       string
	Token    string
	Amount   *big.Int
	FeePayer string
	// DeductFee takes the sender's own fee out of Amount so From never spends more than Amount.
	// It applies to native transfers only.
	DeductFee bool
}

// Transaction is an adapter-built transfer, unsigned until Sign is called for every signer.
type Transaction struct {
	Chain               string
	From                string
	To                  string
	FeePayer            string
	Token               string
	Amount              *big.Int
	Fee                 *big.Int
	CreatesTokenAccount bool
	Signers             []string

	payload interface{}
}

// NeedsSigner reports whether address is one of the transaction's required signers.
func (t *Transaction) NeedsSigner(address string) bool {
	for _, s := range t.Signers {
		if s == address {
			return true
		}
	}
	return false
}

// ConfirmationStatus is a point-in-time view of a submitted transaction.
type ConfirmationStatus struct {
	Count  int64
	Failed bool
	Found  bool
}

// KeyPair is a freshly generated custodial key. PrivateKey must be zeroed by the caller after use.
type KeyPair struct {
	Address        string
	PrivateKey     []byte
	Scheme         string
	DerivationPath string
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
