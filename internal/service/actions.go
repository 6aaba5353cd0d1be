package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/fcoaccruals/internal/filter"
	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/repository"
	"github.com/mmeshcher/fcoaccruals/internal/workflow"
)

// AdvanceRequest выбирает позиции заказа для перевода на следующий этап.
// Пустой список Items означает все видимые роли позиции заказа.
type AdvanceRequest struct {
	PurchaseOrder string
	Items         []string
}

// visibleItem загружает позицию и проверяет, что она видна роли.
// Невидимая позиция неотличима от отсутствующей.
func (s *Service) visibleItem(ctx context.Context, key model.ItemKey, visibility filter.Filter) (*model.OrderItem, error) {
	it, err := s.repo.FindItem(ctx, key)
	if err != nil {
		return nil, err
	}
	if !visibility.Match(it) {
		return nil, fmt.Errorf("%w: %s", repository.ErrItemNotFound, key)
	}
	return it, nil
}

// RecordEditedAmount сохраняет скорректированную пользователем открытую сумму позиции
// и возвращает заказ с пересчитанными суммами.
func (s *Service) RecordEditedAmount(ctx context.Context, id model.Identity, role model.Role, key model.ItemKey, amount decimal.Decimal) (*model.Order, error) {
	if !id.HasRole(role) {
		return nil, ErrRoleNotGranted
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	uc, err := s.userContext(ctx, id, role)
	if err != nil {
		return nil, err
	}
	visibility := workflow.Visibility(role, uc)

	it, err := s.visibleItem(ctx, key, visibility)
	if err != nil {
		return nil, err
	}
	if !it.Editable || it.ProcessingState == model.StateFinal {
		return nil, fmt.Errorf("%w: %s", ErrItemNotEditable, key)
	}

	it.OpenTotalAmountEditable = model.RoundAmount(amount)
	workflow.Normalize(it)

	state := it.ProcessingState
	updated, err := s.repo.UpdateItem(ctx, key, model.ItemUpdate{
		OpenTotalAmountEditable: &it.OpenTotalAmountEditable,
		Highlight:               &it.Highlight,
		ExpectState:             &state,
	})
	if err != nil {
		return nil, fmt.Errorf("update item %s: %w", key, err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: %s", ErrConflict, key)
	}

	s.logger.Info("Edited amount recorded",
		zap.String("item", key.String()),
		zap.String("role", string(role)),
		zap.String("amount", it.OpenTotalAmountEditable.StringFixed(model.AmountScale)),
	)

	order, err := s.visibleOrder(ctx, key.PurchaseOrder, visibility)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrItemNotFound, key)
	}
	return order, nil
}

// ToggleApproval устанавливает флаг согласования роли на позиции.
// Для заявителя и для завершённых позиций действие ничего не меняет.
func (s *Service) ToggleApproval(ctx context.Context, id model.Identity, role model.Role, key model.ItemKey, value bool) (*model.OrderItem, error) {
	if !id.HasRole(role) {
		return nil, ErrRoleNotGranted
	}

	uc, err := s.userContext(ctx, id, role)
	if err != nil {
		return nil, err
	}

	it, err := s.visibleItem(ctx, key, workflow.Visibility(role, uc))
	if err != nil {
		return nil, err
	}

	state := it.ProcessingState
	if !workflow.ToggleApproval(it, role, value) {
		workflow.Normalize(it)
		return it, nil
	}

	upd, _ := workflow.ApprovalUpdate(role, value)
	upd.ExpectState = &state
	updated, err := s.repo.UpdateItem(ctx, key, upd)
	if err != nil {
		return nil, fmt.Errorf("update item %s: %w", key, err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: %s", ErrConflict, key)
	}

	workflow.Normalize(it)
	return it, nil
}

// AdvanceProcessingState переводит согласованные ролью позиции на следующий этап.
// Позиции вне входного этапа роли или без её согласования пропускаются.
// Возвращает заказы с пересчитанными суммами по видимым позициям.
func (s *Service) AdvanceProcessingState(ctx context.Context, id model.Identity, role model.Role, requests []AdvanceRequest) ([]model.Order, error) {
	if !id.HasRole(role) {
		return nil, ErrRoleNotGranted
	}

	uc, err := s.userContext(ctx, id, role)
	if err != nil {
		return nil, err
	}
	visibility := workflow.Visibility(role, uc)

	var candidates []model.OrderItem
	var numbers []string
	seen := make(map[string]bool)
	for _, req := range requests {
		items, err := s.repo.FindItems(ctx, filter.All(filter.Eq(filter.FieldPurchaseOrder, req.PurchaseOrder), visibility))
		if err != nil {
			return nil, fmt.Errorf("find items of %s: %w", req.PurchaseOrder, err)
		}
		candidates = append(candidates, selectItems(items, req.Items)...)
		if !seen[req.PurchaseOrder] {
			seen[req.PurchaseOrder] = true
			numbers = append(numbers, req.PurchaseOrder)
		}
	}

	var mu sync.Mutex
	advanced := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, it := range candidates {
		from := it.ProcessingState
		if !workflow.Advance(&it, role) {
			continue
		}

		g.Go(func() error {
			updated, err := s.repo.UpdateItem(gctx, it.Key(), model.ItemUpdate{
				ProcessingState: &it.ProcessingState,
				Highlight:       &it.Highlight,
				Editable:        &it.Editable,
				ExpectState:     &from,
			})
			if err != nil {
				return fmt.Errorf("advance item %s: %w", it.Key(), err)
			}
			if updated {
				mu.Lock()
				advanced++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("Processing state advanced",
		zap.String("role", string(role)),
		zap.Int("candidates", len(candidates)),
		zap.Int("advanced", advanced),
	)

	orders := make([]model.Order, 0, len(numbers))
	for _, po := range numbers {
		order, err := s.visibleOrder(ctx, po, visibility)
		if err != nil {
			return nil, err
		}
		if order != nil {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func selectItems(items []model.OrderItem, numbers []string) []model.OrderItem {
	if len(numbers) == 0 {
		return items
	}

	wanted := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		wanted[n] = true
	}

	res := make([]model.OrderItem, 0, len(numbers))
	for _, it := range items {
		if wanted[it.PurchaseOrderItem] {
			res = append(res, it)
		}
	}
	return res
}

// IsNotFound сообщает, относится ли ошибка к отсутствующей позиции.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrItemNotFound)
}
