package disbursement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/observability/tracing"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("disbursement_not_configured")
	ErrEmptyBatch    = payoutdomain.ErrEmptyBatch
)

// PayPalRail sends payouts through the PayPal Payouts REST API. Every call
// fetches a fresh client-credentials token; batches are infrequent.
type PayPalRail struct {
	baseURL      string
	clientID     string
	clientSecret string
	emailSubject string
	client       *http.Client
	log          *zap.Logger
}

func NewPayPalRail(cfg config.PayPalConfig, client *http.Client, log *zap.Logger) *PayPalRail {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PayPalRail{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		emailSubject: cfg.EmailSubject,
		client:       tracing.WrapHTTPClient(client),
		log:          log.Named("disbursement.paypal"),
	}
}

func (r *PayPalRail) Configured() bool {
	return r.baseURL != "" && r.clientID != "" && r.clientSecret != ""
}

type paypalAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paypalItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        paypalAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id"`
}

type paypalPayoutRequest struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
		EmailSubject  string `json:"email_subject,omitempty"`
	} `json:"sender_batch_header"`
	Items []paypalItem `json:"items"`
}

type paypalPayoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"error_description"`
}

func (r *PayPalRail) Disburse(ctx context.Context, batch payoutdomain.Batch) (payoutdomain.Receipt, error) {
	if !r.Configured() {
		return payoutdomain.Receipt{}, ErrNotConfigured
	}
	if len(batch.Items) == 0 {
		return payoutdomain.Receipt{}, ErrEmptyBatch
	}

	token, err := r.accessToken(ctx)
	if err != nil {
		return payoutdomain.Receipt{}, err
	}

	senderBatchID, err := batch.SenderBatchID()
	if err != nil {
		return payoutdomain.Receipt{}, err
	}

	var body paypalPayoutRequest
	body.SenderBatchHeader.SenderBatchID = senderBatchID
	body.SenderBatchHeader.EmailSubject = r.emailSubject
	for _, item := range batch.Items {
		body.Items = append(body.Items, paypalItem{
			RecipientType: "EMAIL",
			Amount: paypalAmount{
				Value:    formatAmount(item.AmountCents),
				Currency: strings.ToUpper(item.Currency),
			},
			Receiver:     item.Receiver,
			Note:         item.Note,
			SenderItemID: item.PayoutID.String(),
		})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return payoutdomain.Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/payments/payouts", strings.NewReader(string(payload)))
	if err != nil {
		return payoutdomain.Receipt{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	// Stable for a given payout set. PayPal replays the stored response for a
	// repeated request id and rejects a reused sender_batch_id.
	req.Header.Set("PayPal-Request-Id", body.SenderBatchHeader.SenderBatchID)

	var out paypalPayoutResponse
	if err := r.do(req, &out); err != nil {
		return payoutdomain.Receipt{}, err
	}
	if out.BatchHeader.PayoutBatchID == "" {
		return payoutdomain.Receipt{}, errors.New("paypal_response_invalid")
	}

	r.log.Info("paypal payout batch created",
		zap.String("payout_batch_id", out.BatchHeader.PayoutBatchID),
		zap.String("sender_batch_id", body.SenderBatchHeader.SenderBatchID),
		zap.String("batch_status", out.BatchHeader.BatchStatus),
		zap.Int("items", len(body.Items)),
	)
	return payoutdomain.Receipt{
		Reference:     out.BatchHeader.PayoutBatchID,
		SenderBatchID: body.SenderBatchHeader.SenderBatchID,
	}, nil
}

func (r *PayPalRail) accessToken(ctx context.Context) (string, error) {
	values := url.Values{}
	values.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := r.do(req, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("paypal_token_missing")
	}
	return out.AccessToken, nil
}

func (r *PayPalRail) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr paypalError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("paypal_request_failed: status %d", resp.StatusCode)
		}
		message := firstNonEmpty(apiErr.Message, apiErr.Detail, apiErr.Name, apiErr.Error)
		if message == "" {
			message = "paypal_request_failed"
		}
		return fmt.Errorf("paypal: %s (status %d)", message, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
