package identity

import (
	"context"

	"github.com/google/uuid"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/provider"
)

// Client reads KYC verification tiers from the identity provider
type Client struct {
	http *provider.Client
}

// NewClient creates an identity client
func NewClient(httpClient *provider.Client) *Client {
	return &Client{http: httpClient}
}

// GetVerificationTier returns the user's tier. Users unknown to the provider are tier 0.
func (c *Client) GetVerificationTier(ctx context.Context, userID uuid.UUID) (int, error) {
	var out struct {
		UserID string `json:"user_id"`
		Tier   *int   `json:"tier"`
	}
	err := c.http.Do(ctx, provider.Request{Path: "users/" + userID.String() + "/verification"}, &out)
	if domainerrors.IsProviderKind(err, domainerrors.ProviderNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if out.Tier == nil || *out.Tier < 0 {
		return 0, domainerrors.NewProviderError(c.http.Name(), domainerrors.ProviderInvalidResponse, "missing tier", nil)
	}
	return *out.Tier, nil
}
