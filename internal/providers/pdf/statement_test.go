package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStatementProducesPDF(t *testing.T) {
	doc, err := New().GenerateStatement(context.Background(), StatementData{
		ProgramName:    "Hightide Affiliates",
		AffiliateName:  "Jane Doe",
		AffiliateEmail: "jane@example.com",
		PayoutID:       "1234",
		Status:         "completed",
		Method:         "paypal",
		Reference:      "PAYOUT-1",
		CreatedAt:      "2026-02-01",
		CompletedAt:    "2026-02-03",
		Total:          "$15.00",
		Lines: []StatementLine{
			{Date: "2026-01-10", Invoice: "in_1", Tier: "direct", Rate: "50.00%", Amount: "$5.00"},
			{Date: "2026-01-20", Invoice: "in_2", Tier: "tier2", Rate: "10.00%", Amount: "$10.00"},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGenerateStatementHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().GenerateStatement(ctx, StatementData{})
	assert.ErrorIs(t, err, context.Canceled)
}
