package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newItem(state model.ProcessingState) model.OrderItem {
	it := model.OrderItem{
		PurchaseOrder:           "4500000001",
		PurchaseOrderItem:       "10",
		Requester:               "JDOE",
		CostCenterID:            "CC100",
		OpenTotalAmount:         amount("150"),
		OpenTotalAmountEditable: amount("150"),
		ProcessingState:         state,
	}
	Normalize(&it)
	return it
}

func TestDeriveHighlight(t *testing.T) {
	tests := []struct {
		name     string
		state    model.ProcessingState
		open     string
		editable string
		want     model.Highlight
	}{
		{name: "untouched", state: model.StateRequester, open: "150", editable: "150", want: model.HighlightNone},
		{name: "edited", state: model.StateControlling, open: "150", editable: "120", want: model.HighlightInformation},
		{name: "final wins over edit", state: model.StateFinal, open: "150", editable: "120", want: model.HighlightSuccess},
		{name: "drift below scale ignored", state: model.StateRequester, open: "0.1", editable: "0.1000001", want: model.HighlightNone},
		{name: "same value different scale", state: model.StateRequester, open: "150.000", editable: "150", want: model.HighlightNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := model.OrderItem{
				ProcessingState:         tt.state,
				OpenTotalAmount:         amount(tt.open),
				OpenTotalAmountEditable: amount(tt.editable),
			}
			assert.Equal(t, tt.want, DeriveHighlight(&it))
		})
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name     string
		state    model.ProcessingState
		role     model.Role
		approve  func(it *model.OrderItem)
		want     model.ProcessingState
		advanced bool
	}{
		{name: "requester needs no approval", state: model.StateRequester, role: model.RoleRequester, want: model.StateCostCenterResponsible, advanced: true},
		{name: "ccr without approval", state: model.StateCostCenterResponsible, role: model.RoleCostCenterResponsible, want: model.StateCostCenterResponsible},
		{
			name: "ccr approved", state: model.StateCostCenterResponsible, role: model.RoleCostCenterResponsible,
			approve: func(it *model.OrderItem) { it.ApprovedByCCR = true },
			want:    model.StateControlling, advanced: true,
		},
		{
			name: "controlling approved", state: model.StateControlling, role: model.RoleControlling,
			approve: func(it *model.OrderItem) { it.ApprovedByCON = true },
			want:    model.StateAccounting, advanced: true,
		},
		{
			name: "wrong role for stage", state: model.StateControlling, role: model.RoleAccounting,
			approve: func(it *model.OrderItem) { it.ApprovedByACC = true },
			want:    model.StateControlling,
		},
		{
			name: "flag of another stage does not count", state: model.StateControlling, role: model.RoleControlling,
			approve: func(it *model.OrderItem) { it.ApprovedByCCR = true },
			want:    model.StateControlling,
		},
		{name: "final is terminal", state: model.StateFinal, role: model.RoleAccounting, want: model.StateFinal},
		{name: "initial not advanced by requester", state: model.StateInitial, role: model.RoleRequester, want: model.StateInitial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newItem(tt.state)
			if tt.approve != nil {
				tt.approve(&it)
			}

			assert.Equal(t, tt.advanced, Advance(&it, tt.role))
			assert.Equal(t, tt.want, it.ProcessingState)
		})
	}
}

func TestAdvance_AccountingFinalizes(t *testing.T) {
	it := newItem(model.StateAccounting)
	it.OpenTotalAmountEditable = amount("99")
	Normalize(&it)
	require.Equal(t, model.HighlightInformation, it.Highlight)

	require.True(t, ToggleApproval(&it, model.RoleAccounting, true))
	require.True(t, Advance(&it, model.RoleAccounting))

	assert.Equal(t, model.StateFinal, it.ProcessingState)
	assert.Equal(t, model.HighlightSuccess, it.Highlight)
	assert.False(t, it.Editable)
}

func TestAdvance_NeverRegresses(t *testing.T) {
	for _, start := range []model.ProcessingState{
		model.StateInitial, model.StateRequester, model.StateCostCenterResponsible,
		model.StateControlling, model.StateAccounting, model.StateFinal,
	} {
		it := newItem(start)
		it.ApprovedByCCR, it.ApprovedByCON, it.ApprovedByACC = true, true, true

		prev := it.ProcessingState.Index()
		for range 3 {
			for _, role := range model.Roles {
				Advance(&it, role)
				idx := it.ProcessingState.Index()
				require.GreaterOrEqual(t, idx, prev, "state regressed from %s", start)
				prev = idx
			}
		}

		if it.ProcessingState == model.StateFinal {
			assert.False(t, it.Editable)
			assert.Equal(t, model.HighlightSuccess, it.Highlight)
		}
	}
}

func TestToggleApproval(t *testing.T) {
	it := newItem(model.StateCostCenterResponsible)

	assert.False(t, ToggleApproval(&it, model.RoleRequester, true), "requester owns no flag")
	assert.True(t, ToggleApproval(&it, model.RoleCostCenterResponsible, true))
	assert.True(t, it.ApprovedByCCR)
	assert.False(t, it.ApprovedByCON)
	assert.Equal(t, model.StateCostCenterResponsible, it.ProcessingState, "toggle never advances")

	final := newItem(model.StateFinal)
	assert.False(t, ToggleApproval(&final, model.RoleAccounting, false))
	assert.False(t, final.ApprovedByACC)
}

func TestToggleApproval_OutsideOwnStage(t *testing.T) {
	tests := []struct {
		name  string
		state model.ProcessingState
		role  model.Role
	}{
		{name: "controlling after its stage", state: model.StateAccounting, role: model.RoleControlling},
		{name: "ccr after its stage", state: model.StateControlling, role: model.RoleCostCenterResponsible},
		{name: "accounting before its stage", state: model.StateCostCenterResponsible, role: model.RoleAccounting},
		{name: "ccr on requester stage", state: model.StateRequester, role: model.RoleCostCenterResponsible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newItem(tt.state)

			assert.False(t, ToggleApproval(&it, tt.role, true))
			assert.False(t, it.ApprovedByCCR)
			assert.False(t, it.ApprovedByCON)
			assert.False(t, it.ApprovedByACC)
			assert.Equal(t, tt.state, it.ProcessingState)
		})
	}
}

func TestTransitionFor(t *testing.T) {
	tr, ok := TransitionFor(model.RoleControlling)
	require.True(t, ok)
	assert.Equal(t, model.StateControlling, tr.From)
	assert.Equal(t, model.StateAccounting, tr.To)
	require.NotNil(t, tr.Approved)

	tr, ok = TransitionFor(model.RoleRequester)
	require.True(t, ok)
	assert.Nil(t, tr.Approved)

	_, ok = TransitionFor(model.Role("admin"))
	assert.False(t, ok)
}

func TestApprovalUpdate(t *testing.T) {
	upd, ok := ApprovalUpdate(model.RoleControlling, true)
	require.True(t, ok)
	require.NotNil(t, upd.ApprovedByCON)
	assert.True(t, *upd.ApprovedByCON)
	assert.Nil(t, upd.ApprovedByCCR)

	_, ok = ApprovalUpdate(model.RoleRequester, true)
	assert.False(t, ok)
}
