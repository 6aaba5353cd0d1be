package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

func TestMatch(t *testing.T) {
	item := &model.OrderItem{
		PurchaseOrder:     "4500000001",
		PurchaseOrderItem: "10",
		Requester:         "JDOE",
		ProcessingState:   model.StateControlling,
		CostCenterID:      "CC100",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "eq match", filter: Eq(FieldRequester, "JDOE"), want: true},
		{name: "eq mismatch", filter: Eq(FieldRequester, "OTHER"), want: false},
		{name: "ne", filter: Ne(FieldProcessingState, string(model.StateRequester)), want: true},
		{name: "in match", filter: In(FieldCostCenterID, "CC200", "CC100"), want: true},
		{name: "in empty", filter: In(FieldCostCenterID), want: false},
		{
			name:   "between inclusive lower bound",
			filter: Between(FieldProcessingState, string(model.StateControlling), string(model.StateFinal)),
			want:   true,
		},
		{
			name:   "between below range",
			filter: Between(FieldProcessingState, string(model.StateAccounting), string(model.StateFinal)),
			want:   false,
		},
		{
			name:   "all short-circuits on mismatch",
			filter: All(Eq(FieldRequester, "JDOE"), Eq(FieldCostCenterID, "CC999")),
			want:   false,
		},
		{
			name:   "any single match",
			filter: Any(Eq(FieldRequester, "OTHER"), Eq(FieldCostCenterID, "CC100")),
			want:   true,
		},
		{name: "not", filter: Not(Eq(FieldRequester, "JDOE")), want: false},
		{name: "key", filter: ForKey(model.ItemKey{PurchaseOrder: "4500000001", PurchaseOrderItem: "10"}), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(item))
		})
	}
}

func TestSQL(t *testing.T) {
	f := All(
		Ne(FieldProcessingState, "1"),
		Any(In(FieldCostCenterID, "CC1", "CC2"), Not(Eq(FieldRequester, "JDOE"))),
	)

	args := NewArgs("already-bound")
	sql := f.SQL(args)

	assert.Equal(t,
		"(processing_state <> $2) AND ((cost_center_id = ANY($3)) OR (NOT (requester = $4)))",
		sql,
	)
	assert.Equal(t, []any{"already-bound", "1", []string{"CC1", "CC2"}, "JDOE"}, args.Values())
}

func TestSQL_EmptyInRendersFalse(t *testing.T) {
	args := NewArgs()
	assert.Equal(t, "FALSE", In(FieldCostCenterID).SQL(args))
	assert.Empty(t, args.Values())
}
