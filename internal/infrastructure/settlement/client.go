package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/shopspring/decimal"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/provider"
)

// SignatureHeader carries the JWS over the request body
const SignatureHeader = "X-Signature"

// OfframpRequest is the fiat conversion instruction sent to the provider
type OfframpRequest struct {
	ClientReference string
	Asset           string // "<chain>:<asset>"
	CryptoAmount    decimal.Decimal
	FiatAmount      decimal.Decimal
	Currency        string
	BankCode        string
	AccountNumber   string
	AccountName     string
}

// StatusResult is the provider's view of one offramp
type StatusResult struct {
	Reference       string
	ClientReference string
	Status          entities.PayoutStatus
	Reason          string
}

type beneficiaryBody struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name,omitempty"`
}

type submitBody struct {
	ClientReference string          `json:"client_reference"`
	Asset           string          `json:"asset"`
	CryptoAmount    string          `json:"crypto_amount"`
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	Beneficiary     beneficiaryBody `json:"beneficiary"`
}

type statusBody struct {
	Reference       string `json:"reference"`
	ClientReference string `json:"client_reference"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	Timestamp       int64  `json:"timestamp,omitempty"`
}

// Client talks to the offramp settlement provider. Bodies are signed with HS256 JWS.
type Client struct {
	http      *provider.Client
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewClient creates a settlement client. tolerance bounds callback timestamp skew.
func NewClient(httpClient *provider.Client, signingSecret string, tolerance time.Duration) *Client {
	return &Client{
		http:      httpClient,
		secret:    []byte(signingSecret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// SubmitOfframp sends the instruction and returns the provider reference
func (c *Client) SubmitOfframp(ctx context.Context, req OfframpRequest) (string, error) {
	body, err := json.Marshal(submitBody{
		ClientReference: req.ClientReference,
		Asset:           req.Asset,
		CryptoAmount:    req.CryptoAmount.String(),
		Amount:          req.FiatAmount.StringFixed(2),
		Currency:        strings.ToUpper(req.Currency),
		Beneficiary: beneficiaryBody{
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountName:   req.AccountName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode offramp request: %w", err)
	}
	sig, err := c.Sign(body)
	if err != nil {
		return "", err
	}

	var out statusBody
	err = c.http.Do(ctx, provider.Request{
		Method: http.MethodPost,
		Path:   "offramps",
		Body:   body,
		Header: http.Header{SignatureHeader: {sig}},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Reference == "" {
		return "", domainerrors.NewProviderError(c.http.Name(), domainerrors.ProviderInvalidResponse, "missing reference", nil)
	}
	return out.Reference, nil
}

// GetOfframpStatus looks up an offramp by provider or client reference
func (c *Client) GetOfframpStatus(ctx context.Context, reference string) (StatusResult, error) {
	var out statusBody
	if err := c.http.Do(ctx, provider.Request{Path: "offramps/" + url.PathEscape(reference)}, &out); err != nil {
		return StatusResult{}, err
	}
	return c.toResult(out)
}

// VerifyCallback checks a provider status push and returns its content
func (c *Client) VerifyCallback(signed string) (StatusResult, error) {
	obj, err := jose.ParseSigned(strings.TrimSpace(signed))
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: malformed signature", domainerrors.ErrUnauthorized)
	}
	if len(obj.Signatures) != 1 || obj.Signatures[0].Header.Algorithm != string(jose.HS256) {
		return StatusResult{}, fmt.Errorf("%w: unexpected signature algorithm", domainerrors.ErrUnauthorized)
	}
	payload, err := obj.Verify(c.secret)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: signature mismatch", domainerrors.ErrUnauthorized)
	}

	var body statusBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return StatusResult{}, fmt.Errorf("%w: invalid callback body", domainerrors.ErrInvalidInput)
	}
	if c.tolerance > 0 {
		sent := time.Unix(body.Timestamp, 0)
		if skew := c.now().Sub(sent); skew > c.tolerance || skew < -c.tolerance {
			return StatusResult{}, fmt.Errorf("%w: callback timestamp outside tolerance", domainerrors.ErrUnauthorized)
		}
	}
	return c.toResult(body)
}

// Sign returns the compact HS256 JWS of payload
func (c *Client) Sign(payload []byte) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: c.secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return obj.CompactSerialize()
}

func (c *Client) toResult(body statusBody) (StatusResult, error) {
	status, ok := mapStatus(body.Status)
	if !ok {
		return StatusResult{}, domainerrors.NewProviderError(c.http.Name(), domainerrors.ProviderInvalidResponse, "unknown status "+body.Status, nil)
	}
	return StatusResult{
		Reference:       body.Reference,
		ClientReference: body.ClientReference,
		Status:          status,
		Reason:          body.Reason,
	}, nil
}

func mapStatus(raw string) (entities.PayoutStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "processing", "in_progress":
		return entities.PayoutStatusProcessing, true
	case "success", "successful", "completed", "paid":
		return entities.PayoutStatusSuccess, true
	case "failed", "rejected", "cancelled", "canceled":
		return entities.PayoutStatusFailed, true
	case "reversed", "refunded":
		return entities.PayoutStatusReversed, true
	default:
		return "", false
	}
}
