package domain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"slices"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

type DisbursementItem struct {
	PayoutID    snowflake.ID
	Receiver    string
	AmountCents int64
	Currency    string
	Note        string
}

type Batch struct {
	Items []DisbursementItem
}

var ErrEmptyBatch = errors.New("disbursement_empty_batch")

// SenderBatchID is a ULID derived from the sorted payout ids. The same payout
// set always maps to the same id, so a resent batch reuses it.
func (b Batch) SenderBatchID() (string, error) {
	if len(b.Items) == 0 {
		return "", ErrEmptyBatch
	}
	ids := make([]snowflake.ID, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.PayoutID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write(strconv.AppendInt(nil, id.Int64(), 10))
		h.Write([]byte{','})
	}
	sum := h.Sum(nil)

	// newest payout's creation time as the ULID timestamp
	ms := ids[len(ids)-1].Time()
	if ms < 0 {
		ms = 0
	}
	id, err := ulid.New(uint64(ms), bytes.NewReader(sum))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type Receipt struct {
	// Reference is the rail's id for the whole batch.
	Reference     string
	SenderBatchID string
}

// DisbursementRail sends money to affiliates. A rail that is not configured
// is never called and its payouts fall back to manual reconciliation.
type DisbursementRail interface {
	Configured() bool
	Disburse(ctx context.Context, batch Batch) (Receipt, error)
}
