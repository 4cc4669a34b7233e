package disbursement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/config"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRail(t *testing.T, handler http.Handler) *PayPalRail {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rail := NewPayPalRail(config.PayPalConfig{
		BaseURL:      srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		EmailSubject: "You have a payout",
	}, srv.Client(), zap.NewNop())
	return rail
}

func TestPayPalRailDisbursesBatch(t *testing.T) {
	batch := payoutdomain.Batch{Items: []payoutdomain.DisbursementItem{
		{PayoutID: snowflake.ID(7), Receiver: "jane@example.com", AmountCents: 1505, Currency: "usd"},
	}}
	senderBatchID, err := batch.SenderBatchID()
	require.NoError(t, err)

	var received paypalPayoutRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, senderBatchID, r.Header.Get("PayPal-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"PB-1","batch_status":"PENDING"}}`))
	})
	rail := newTestRail(t, mux)

	receipt, err := rail.Disburse(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "PB-1", receipt.Reference)
	assert.Equal(t, senderBatchID, receipt.SenderBatchID)
	assert.Equal(t, senderBatchID, received.SenderBatchHeader.SenderBatchID)

	require.Len(t, received.Items, 1)
	assert.Equal(t, "15.05", received.Items[0].Amount.Value)
	assert.Equal(t, "USD", received.Items[0].Amount.Currency)
	assert.Equal(t, "7", received.Items[0].SenderItemID)
	assert.Equal(t, "EMAIL", received.Items[0].RecipientType)
}

func TestPayPalRailSurfacesAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"INSUFFICIENT_FUNDS","message":"Sender does not have sufficient funds."}`))
	})
	rail := newTestRail(t, mux)

	_, err := rail.Disburse(context.Background(), payoutdomain.Batch{Items: []payoutdomain.DisbursementItem{
		{PayoutID: snowflake.ID(7), Receiver: "jane@example.com", AmountCents: 100, Currency: "usd"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sufficient funds")
}

func TestPayPalRailRejectsEmptyAndUnconfigured(t *testing.T) {
	rail := newTestRail(t, http.NotFoundHandler())
	_, err := rail.Disburse(context.Background(), payoutdomain.Batch{})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	bare := NewPayPalRail(config.PayPalConfig{}, nil, zap.NewNop())
	assert.False(t, bare.Configured())
	_, err = bare.Disburse(context.Background(), payoutdomain.Batch{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	assert.False(t, Noop{}.Configured())
}

func TestPayPalRailReusesRequestIDForSamePayouts(t *testing.T) {
	var requestIDs []string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		requestIDs = append(requestIDs, r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"PB-1","batch_status":"PENDING"}}`))
	})
	rail := newTestRail(t, mux)

	a := payoutdomain.DisbursementItem{PayoutID: snowflake.ID(7), Receiver: "a@example.com", AmountCents: 100, Currency: "usd"}
	b := payoutdomain.DisbursementItem{PayoutID: snowflake.ID(9), Receiver: "b@example.com", AmountCents: 200, Currency: "usd"}
	_, err := rail.Disburse(context.Background(), payoutdomain.Batch{Items: []payoutdomain.DisbursementItem{a, b}})
	require.NoError(t, err)
	_, err = rail.Disburse(context.Background(), payoutdomain.Batch{Items: []payoutdomain.DisbursementItem{b, a}})
	require.NoError(t, err)

	require.Len(t, requestIDs, 2)
	assert.NotEmpty(t, requestIDs[0])
	assert.Equal(t, requestIDs[0], requestIDs[1])
}
