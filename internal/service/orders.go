package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mmeshcher/fcoaccruals/internal/filter"
	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/workflow"
)

// Orders возвращает заказы с позициями, видимыми роли. Для заявителя перед чтением
// выполняется сверка с системой закупок.
func (s *Service) Orders(ctx context.Context, id model.Identity, role model.Role) ([]model.Order, error) {
	if !id.HasRole(role) {
		return nil, ErrRoleNotGranted
	}

	uc, err := s.ResolveContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkContext(uc, role); err != nil {
		return nil, err
	}

	if role == model.RoleRequester {
		if err := s.Reconcile(ctx, uc); err != nil {
			return nil, err
		}
	}

	return s.visibleOrders(ctx, workflow.Visibility(role, uc))
}

// visibleOrders группирует позиции, прошедшие фильтр, по заказам в порядке убывания номера.
func (s *Service) visibleOrders(ctx context.Context, f filter.Filter) ([]model.Order, error) {
	items, err := s.repo.FindItems(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	if len(items) == 0 {
		return []model.Order{}, nil
	}

	grouped := make(map[string][]model.OrderItem)
	var numbers []string
	for _, it := range items {
		if _, ok := grouped[it.PurchaseOrder]; !ok {
			numbers = append(numbers, it.PurchaseOrder)
		}
		grouped[it.PurchaseOrder] = append(grouped[it.PurchaseOrder], it)
	}

	headers, err := s.repo.FindOrders(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	byNumber := make(map[string]model.Order, len(headers))
	for _, h := range headers {
		byNumber[h.PurchaseOrder] = h
	}

	sort.Slice(numbers, func(i, j int) bool { return lessNumeric(numbers[j], numbers[i]) })

	orders := make([]model.Order, 0, len(numbers))
	for _, po := range numbers {
		its := grouped[po]
		header, ok := byNumber[po]
		if !ok {
			header = model.Order{
				PurchaseOrder: po,
				Supplier:      its[0].Supplier,
				SupplierText:  its[0].SupplierText,
			}
		}
		sort.Slice(its, func(i, j int) bool { return lessNumeric(its[i].PurchaseOrderItem, its[j].PurchaseOrderItem) })
		orders = append(orders, workflow.Aggregate(header, its))
	}

	return orders, nil
}

// visibleOrder возвращает один заказ с видимыми роли позициями или nil.
func (s *Service) visibleOrder(ctx context.Context, purchaseOrder string, visibility filter.Filter) (*model.Order, error) {
	orders, err := s.visibleOrders(ctx, filter.All(filter.Eq(filter.FieldPurchaseOrder, purchaseOrder), visibility))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// lessNumeric сравнивает номера без ведущих нулей как числа: "20" < "100".
func lessNumeric(a, b string) bool {
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
