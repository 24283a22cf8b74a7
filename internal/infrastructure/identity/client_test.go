package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/provider"
)

func TestClient_GetVerificationTier(t *testing.T) {
	verified := uuid.New()
	unknown := uuid.New()
	broken := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/" + verified.String() + "/verification":
			_, _ = w.Write([]byte(`{"user_id":"` + verified.String() + `","tier":2}`))
		case "/users/" + broken.String() + "/verification":
			_, _ = w.Write([]byte(`{"user_id":"x"}`))
		case "/users/" + unknown.String() + "/verification":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(provider.New("identity", srv.URL, time.Second))

	tier, err := c.GetVerificationTier(context.Background(), verified)
	require.NoError(t, err)
	assert.Equal(t, 2, tier)

	tier, err = c.GetVerificationTier(context.Background(), unknown)
	require.NoError(t, err)
	assert.Equal(t, 0, tier)

	_, err = c.GetVerificationTier(context.Background(), broken)
	assert.True(t, domainerrors.IsProviderKind(err, domainerrors.ProviderInvalidResponse))

	_, err = c.GetVerificationTier(context.Background(), uuid.New())
	assert.True(t, domainerrors.IsProviderKind(err, domainerrors.ProviderUnavailable))
}
