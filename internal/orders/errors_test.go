package orders

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", insufficientStock(StockShortfall{ProductID: 1, Name: "A", Available: 1, Requested: 2}))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, errors.New("insufficient stock"))

	var oe *Error
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, KindBusinessRule, oe.Kind)
	assert.Equal(t, "business_rule", oe.Kind.String())
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, ErrConcurrentModification.Retryable())
	assert.True(t, ErrUpstreamUnavailable.Retryable())
	assert.True(t, ErrOperationInProgress.Retryable())
	assert.False(t, ErrInsufficientStock.Retryable())
	assert.False(t, ErrInvalidTransition.Retryable())
	assert.False(t, ErrValidation.Retryable())
}

func TestInvalidTransitionCarriesCurrentStatus(t *testing.T) {
	err := invalidTransition(4, StatusCanceled, "confirmed")
	assert.Equal(t, "order cannot be confirmed. current status: CANCELED", err.Error())
	assert.Equal(t, CurrentStatus{OrderID: 4, Status: StatusCanceled}, err.Details)
}

func TestProductsNotFoundMessage(t *testing.T) {
	err := productsNotFound([]int64{2, 9})
	assert.Equal(t, "products not found: 2, 9", err.Message)
	assert.Equal(t, KindNotFound, err.Kind)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusConfirmed, true},
		{StatusCreated, StatusCanceled, true},
		{StatusConfirmed, StatusCanceled, true},
		{StatusConfirmed, StatusCreated, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCanceled, StatusConfirmed, false},
		{StatusCanceled, StatusCreated, false},
		{"SHIPPED", StatusCanceled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, StatusCanceled.Valid())
	assert.False(t, Status("").Valid())
}

func TestSnapshotRoundTripsErrorDetails(t *testing.T) {
	orig := insufficientStock(StockShortfall{ProductID: 3, Name: "C", Available: 0, Requested: 1})

	b, err := EncodeSnapshot(errorSnapshot(orig))
	require.NoError(t, err)
	snap, err := DecodeSnapshot(b)
	require.NoError(t, err)

	_, replayed := snap.Result()
	require.ErrorIs(t, replayed, ErrInsufficientStock)
	assert.Equal(t, orig.Message, replayed.Error())
	assert.JSONEq(t, `{"product_id":3,"name":"C","available":0,"requested":1}`, string(snap.Error.Details))
}

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"kind":"success"}`, `{"kind":"error"}`, `{"kind":"other","order":{}}`} {
		_, err := DecodeSnapshot([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestMergeItems(t *testing.T) {
	qty, ids, err := mergeItems(1, []ItemInput{{ProductID: 9, Qty: 1}, {ProductID: 2, Qty: 4}, {ProductID: 9, Qty: 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 9}, ids)
	assert.Equal(t, map[int64]int{2: 4, 9: 3}, qty)
}

func TestMergeItemsRejectsOverflow(t *testing.T) {
	_, _, err := mergeItems(7, []ItemInput{{ProductID: 1, Qty: math.MaxInt}, {ProductID: 1, Qty: math.MaxInt}})
	require.ErrorIs(t, err, ErrValidation)

	qty, _, err := mergeItems(7, []ItemInput{{ProductID: 1, Qty: MaxLineQty - 1}, {ProductID: 1, Qty: 1}})
	require.NoError(t, err)
	assert.Equal(t, MaxLineQty, qty[1])
}

func TestLineSubtotal(t *testing.T) {
	got, ok := lineSubtotal(250, 4)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), got)

	_, ok = lineSubtotal(math.MaxInt64/2, 3)
	assert.False(t, ok)

	got, ok = lineSubtotal(math.MaxInt64, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), got)
}

func TestStatusRankFollowsTransitions(t *testing.T) {
	for from, next := range validNext {
		for to := range next {
			assert.Less(t, from.Rank(), to.Rank(), "%s -> %s", from, to)
		}
	}
	assert.Zero(t, Status("SHIPPED").Rank())
}
