package workflow

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/fcoaccruals/internal/filter"
	"github.com/mmeshcher/fcoaccruals/internal/model"
)

// Visibility возвращает фильтр позиций, доступных роли.
func Visibility(role model.Role, uc *model.UserContext) filter.Filter {
	switch role {
	case model.RoleRequester:
		return filter.Eq(filter.FieldRequester, uc.SapUser)
	case model.RoleCostCenterResponsible:
		return filter.All(
			filter.Ne(filter.FieldProcessingState, string(model.StateRequester)),
			filter.In(filter.FieldCostCenterID, uc.CostCenters...),
		)
	case model.RoleControlling:
		return filter.Between(filter.FieldProcessingState, string(model.StateControlling), string(model.StateFinal))
	case model.RoleAccounting:
		return filter.Between(filter.FieldProcessingState, string(model.StateAccounting), string(model.StateFinal))
	}
	return filter.In(filter.FieldPurchaseOrder)
}

// Aggregate заполняет суммы и статус заказа по видимым позициям.
// Позиции получают производный статус; суммы округляются до model.AmountScale.
func Aggregate(order model.Order, items []model.OrderItem) model.Order {
	sum := decimal.Zero
	sumEditable := decimal.Zero

	order.Items = make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		Normalize(&it)
		sum = sum.Add(it.OpenTotalAmount)
		sumEditable = sumEditable.Add(it.OpenTotalAmountEditable)
		order.Items = append(order.Items, it)
	}

	order.OpenTotalAmount = model.RoundAmount(sum)
	order.OpenTotalAmountEditable = model.RoundAmount(sumEditable)
	order.Highlight = OrderHighlight(order.Items)
	return order
}

// OrderHighlight вычисляет статус заказа по статусам его позиций.
func OrderHighlight(items []model.OrderItem) model.Highlight {
	var success, information int
	for _, it := range items {
		switch it.Highlight {
		case model.HighlightSuccess:
			success++
		case model.HighlightInformation:
			information++
		}
	}

	switch {
	case information > 0:
		return model.HighlightInformation
	case len(items) > 0 && success == len(items):
		return model.HighlightSuccess
	case success > 0:
		return model.HighlightInformation
	}
	return model.HighlightNone
}
