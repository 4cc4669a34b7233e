package server

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestStripeWebhookResponses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"processed", nil, http.StatusOK},
		{"duplicate delivery", paymentdomain.ErrEventAlreadyProcessed, http.StatusOK},
		{"bad signature", paymentdomain.ErrInvalidSignature, http.StatusBadRequest},
		{"malformed payload", paymentdomain.ErrInvalidPayload, http.StatusBadRequest},
		{"secret missing", paymentdomain.ErrNotConfigured, http.StatusServiceUnavailable},
		{"storage failure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
			ts.webhooks.On("IngestWebhook", mock.Anything, payload, mock.Anything).Return(tc.err)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rec := ts.do(req)

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
