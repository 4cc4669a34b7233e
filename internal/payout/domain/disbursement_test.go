package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchOf(ids ...int64) Batch {
	var b Batch
	for _, id := range ids {
		b.Items = append(b.Items, DisbursementItem{PayoutID: snowflake.ID(id), AmountCents: 100, Currency: "usd"})
	}
	return b
}

func TestSenderBatchIDIsStablePerPayoutSet(t *testing.T) {
	first, err := batchOf(3, 1, 2).SenderBatchID()
	require.NoError(t, err)
	again, err := batchOf(1, 2, 3).SenderBatchID()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = ulid.ParseStrict(first)
	assert.NoError(t, err)

	other, err := batchOf(1, 2).SenderBatchID()
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSenderBatchIDRejectsEmptyBatch(t *testing.T) {
	_, err := Batch{}.SenderBatchID()
	assert.ErrorIs(t, err, ErrEmptyBatch)
}
