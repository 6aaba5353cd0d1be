package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

func TestAmountArg(t *testing.T) {
	assert.Equal(t, "150.000", amountArg(decimal.NewFromInt(150)))
	assert.Equal(t, "0.300", amountArg(decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))))
	assert.Equal(t, "1.235", amountArg(decimal.RequireFromString("1.2345")))
}

func TestAmountColumnsApply(t *testing.T) {
	var it model.OrderItem
	cols := amountColumns{
		netPrice:     "100.000",
		quantity:     "2.000",
		invoiced:     "50.000",
		open:         "150.000",
		openEditable: "149.990",
	}

	require.NoError(t, cols.apply(&it))
	assert.True(t, it.OpenTotalAmountEditable.Equal(decimal.RequireFromString("149.99")))

	cols.open = "not-a-number"
	assert.Error(t, cols.apply(&it))
}

func TestParseState(t *testing.T) {
	state, err := parseState("3")
	require.NoError(t, err)
	assert.Equal(t, model.StateControlling, state)

	_, err = parseState("9")
	assert.Error(t, err)
	_, err = parseState("")
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	r := &PostgresRepository{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := r.withRetry(ctx, func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_NonRetryableReturnsImmediately(t *testing.T) {
	r := &PostgresRepository{}
	boom := errors.New("boom")

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUpdateItem_EmptyUpdateIsNoop(t *testing.T) {
	r := &PostgresRepository{}

	updated, err := r.UpdateItem(context.Background(), model.ItemKey{PurchaseOrder: "1", PurchaseOrderItem: "10"}, model.ItemUpdate{})
	require.NoError(t, err)
	assert.False(t, updated)
}
