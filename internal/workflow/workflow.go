// Package workflow реализует машину состояний согласования позиций,
// видимость позиций для ролей и агрегацию позиций в заказ.
package workflow

import (
	"github.com/mmeshcher/fcoaccruals/internal/model"
)

// DeriveHighlight вычисляет статус позиции по этапу и суммам.
func DeriveHighlight(it *model.OrderItem) model.Highlight {
	if it.ProcessingState == model.StateFinal {
		return model.HighlightSuccess
	}
	if !it.OpenTotalAmount.Round(model.AmountScale).Equal(it.OpenTotalAmountEditable.Round(model.AmountScale)) {
		return model.HighlightInformation
	}
	return model.HighlightNone
}

// Normalize приводит производные поля позиции в соответствие с её этапом.
func Normalize(it *model.OrderItem) {
	it.Highlight = DeriveHighlight(it)
	it.Editable = it.ProcessingState != model.StateFinal
}

// Transition описывает шаг согласования, выполняемый ролью.
type Transition struct {
	From model.ProcessingState
	To   model.ProcessingState
	// Approved проверяет флаг согласования позиции. Nil означает шаг без согласования.
	Approved func(it *model.OrderItem) bool
}

var transitions = map[model.Role]Transition{
	model.RoleRequester: {
		From: model.StateRequester,
		To:   model.StateCostCenterResponsible,
	},
	model.RoleCostCenterResponsible: {
		From:     model.StateCostCenterResponsible,
		To:       model.StateControlling,
		Approved: func(it *model.OrderItem) bool { return it.ApprovedByCCR },
	},
	model.RoleControlling: {
		From:     model.StateControlling,
		To:       model.StateAccounting,
		Approved: func(it *model.OrderItem) bool { return it.ApprovedByCON },
	},
	model.RoleAccounting: {
		From:     model.StateAccounting,
		To:       model.StateFinal,
		Approved: func(it *model.OrderItem) bool { return it.ApprovedByACC },
	},
}

// TransitionFor возвращает шаг согласования роли.
func TransitionFor(role model.Role) (Transition, bool) {
	t, ok := transitions[role]
	return t, ok
}

// Advance переводит позицию на следующий этап, если она находится во входном этапе роли
// и согласована ею. Возвращает false, если переход не применим.
func Advance(it *model.OrderItem, role model.Role) bool {
	t, ok := TransitionFor(role)
	if !ok || it.ProcessingState != t.From {
		return false
	}
	if t.Approved != nil && !t.Approved(it) {
		return false
	}

	it.ProcessingState = t.To
	Normalize(it)
	return true
}

// ToggleApproval устанавливает флаг согласования, принадлежащий роли.
// Флаг меняется только на входном этапе роли: заявитель флага не имеет,
// позиции на чужих и завершённом этапах не меняются.
func ToggleApproval(it *model.OrderItem, role model.Role, value bool) bool {
	t, ok := TransitionFor(role)
	if !ok || t.Approved == nil || it.ProcessingState != t.From {
		return false
	}

	switch role {
	case model.RoleCostCenterResponsible:
		it.ApprovedByCCR = value
	case model.RoleControlling:
		it.ApprovedByCON = value
	case model.RoleAccounting:
		it.ApprovedByACC = value
	default:
		return false
	}
	return true
}

// ApprovalUpdate возвращает частичное обновление с флагом роли.
func ApprovalUpdate(role model.Role, value bool) (model.ItemUpdate, bool) {
	var upd model.ItemUpdate
	switch role {
	case model.RoleCostCenterResponsible:
		upd.ApprovedByCCR = &value
	case model.RoleControlling:
		upd.ApprovedByCON = &value
	case model.RoleAccounting:
		upd.ApprovedByACC = &value
	default:
		return upd, false
	}
	return upd, true
}
