package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/fcoaccruals/internal/costcenter"
	"github.com/mmeshcher/fcoaccruals/internal/filter"
	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
)

// sourceState хранит состояние позиции в системе закупок вместе с историей счетов и МВЗ.
type sourceState struct {
	item            procurement.PurchaseOrderItem
	invoiced        decimal.Decimal
	finallyInvoiced bool
	attribution     costcenter.Attribution
}

func (st *sourceState) key() model.ItemKey {
	return model.ItemKey{PurchaseOrder: st.item.PurchaseOrder, PurchaseOrderItem: st.item.PurchaseOrderItem}
}

func (st *sourceState) openAmount() decimal.Decimal {
	return model.RoundAmount(st.item.NetPriceAmount.Mul(st.item.OrderQuantity).Sub(st.invoiced))
}

// newItem создаёт позицию на этапе заявителя.
func (st *sourceState) newItem() *model.OrderItem {
	open := st.openAmount()
	it := &model.OrderItem{
		PurchaseOrder:             st.item.PurchaseOrder,
		PurchaseOrderItem:         st.item.PurchaseOrderItem,
		Supplier:                  st.item.Header.Supplier,
		SupplierText:              st.item.Header.AddressName,
		PurchaseOrderItemText:     st.item.PurchaseOrderItemText,
		AccountAssignmentCategory: st.item.AccountAssignmentCategory,
		OrderID:                   st.attribution.OrderID,
		CostCenterID:              st.attribution.CostCenterID,
		Requester:                 st.item.RequisitionerName,
		NetPriceAmount:            model.RoundAmount(st.item.NetPriceAmount),
		OrderQuantity:             model.RoundAmount(st.item.OrderQuantity),
		TotalInvoiceAmount:        model.RoundAmount(st.invoiced),
		OpenTotalAmount:           open,
		OpenTotalAmountEditable:   open,
		ProcessingState:           model.StateRequester,
	}
	it.Highlight = model.HighlightNone
	it.Editable = true
	return it
}

// sourceUpdate обновляет финансовые и описательные поля позиции, не затрагивая согласование.
func (st *sourceState) sourceUpdate() model.ItemUpdate {
	net := model.RoundAmount(st.item.NetPriceAmount)
	qty := model.RoundAmount(st.item.OrderQuantity)
	invoiced := model.RoundAmount(st.invoiced)
	open := st.openAmount()

	return model.ItemUpdate{
		SupplierText:              &st.item.Header.AddressName,
		PurchaseOrderItemText:     &st.item.PurchaseOrderItemText,
		AccountAssignmentCategory: &st.item.AccountAssignmentCategory,
		OrderID:                   &st.attribution.OrderID,
		CostCenterID:              &st.attribution.CostCenterID,
		NetPriceAmount:            &net,
		OrderQuantity:             &qty,
		TotalInvoiceAmount:        &invoiced,
		OpenTotalAmount:           &open,
	}
}

func (st *sourceState) order() *model.Order {
	o := &model.Order{
		PurchaseOrder: st.item.PurchaseOrder,
		Supplier:      st.item.Header.Supplier,
		SupplierText:  st.item.Header.AddressName,
	}
	if t, ok := st.item.Header.CreationTime(); ok {
		o.CreationDate = t
	}
	return o
}

// reconcileTimeout ограничивает общую сверку, не зависящую от отмены запроса.
const reconcileTimeout = 2 * time.Minute

// Reconcile сверяет сохранённые позиции заявителя с системой закупок.
// Параллельные сверки одного заявителя объединяются в одну. Общая сверка
// не прерывается отключением клиента, начавшего её.
func (s *Service) Reconcile(ctx context.Context, uc *model.UserContext) error {
	if uc == nil || uc.SapUser == "" {
		return fmt.Errorf("%w: no sap user", ErrContextMissing)
	}

	ch := s.reconciles.DoChan(uc.SapUser, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reconcileTimeout)
		defer cancel()
		return nil, s.reconcile(rctx, uc.SapUser)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("Reconciliation shared", zap.String("requester", uc.SapUser))
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) reconcile(ctx context.Context, requester string) error {
	s.logger.Info("Reconciliation started", zap.String("requester", requester))

	fetched, err := s.gateway.FetchItemsByRequester(ctx, requester)
	if err != nil {
		s.logger.Warn("Failed to fetch source items", zap.String("requester", requester), zap.Error(err))
		return err
	}

	relevant := s.relevantItems(fetched)

	states, err := s.collectStates(ctx, relevant)
	if err != nil {
		return err
	}

	existing, err := s.repo.FindItems(ctx, filter.Eq(filter.FieldRequester, requester))
	if err != nil {
		return fmt.Errorf("find existing items: %w", err)
	}
	known := make(map[model.ItemKey]bool, len(existing))
	for i := range existing {
		known[existing[i].Key()] = true
	}

	if err := s.saveOrders(ctx, states); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var mu sync.Mutex
	var created, updated, deleted int

	fresh := make(map[model.ItemKey]bool, len(states))
	for _, st := range states {
		key := st.key()
		fresh[key] = true
		exists := known[key]

		g.Go(func() error {
			action, err := s.applyState(gctx, st, exists)
			if err != nil {
				return err
			}
			mu.Lock()
			switch action {
			case actionCreated:
				created++
			case actionUpdated:
				updated++
			case actionDeleted:
				deleted++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var stale []model.OrderItem
	for _, it := range existing {
		if !fresh[it.Key()] {
			stale = append(stale, it)
		}
	}

	if err := s.cleanup(ctx, stale); err != nil {
		return err
	}

	s.logger.Info("Reconciliation finished",
		zap.String("requester", requester),
		zap.Int("fetched", len(fetched)),
		zap.Int("relevant", len(relevant)),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("deleted", deleted),
		zap.Int("stale", len(stale)),
	)
	return nil
}

// relevantItems оставляет неинвестиционные позиции заказов текущего и прошлого года.
func (s *Service) relevantItems(items []procurement.PurchaseOrderItem) []procurement.PurchaseOrderItem {
	year := s.now().Year()

	res := make([]procurement.PurchaseOrderItem, 0, len(items))
	for _, it := range items {
		if model.IsInvestment(it.AccountAssignmentCategory) {
			continue
		}
		created, ok := it.Header.CreationTime()
		if !ok {
			s.logger.Debug("Skipping item without creation date",
				zap.String("purchase_order", it.PurchaseOrder),
				zap.String("purchase_order_item", it.PurchaseOrderItem))
			continue
		}
		if created.Year() != year && created.Year() != year-1 {
			continue
		}
		res = append(res, it)
	}
	return res
}

// collectStates дополняет позиции историей счетов и МВЗ. История и внутренние заказы
// запрашиваются одним пакетом на всю выборку.
func (s *Service) collectStates(ctx context.Context, items []procurement.PurchaseOrderItem) ([]*sourceState, error) {
	if len(items) == 0 {
		return nil, nil
	}

	keys := make([]procurement.HistoryKey, 0, len(items))
	for _, it := range items {
		keys = append(keys, procurement.HistoryKey{PurchaseOrder: it.PurchaseOrder, PurchaseOrderItem: it.PurchaseOrderItem})
	}

	var (
		history      []procurement.HistoryRecord
		attributions map[model.ItemKey]costcenter.Attribution
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.gateway.FetchInvoiceHistory(gctx, keys, model.HistoryCategoryQuantityInvoiced)
		if err != nil {
			s.logger.Warn("Failed to fetch invoice history", zap.Int("keys", len(keys)), zap.Error(err))
		}
		return err
	})
	g.Go(func() error {
		var err error
		attributions, err = s.resolver.ResolveAll(gctx, items)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := make([]*sourceState, 0, len(items))
	index := make(map[model.ItemKey]*sourceState, len(items))
	for _, it := range items {
		st := &sourceState{item: it, invoiced: decimal.Zero, finallyInvoiced: it.IsFinallyInvoiced}
		key := st.key()
		st.attribution = attributions[key]
		if prev, ok := index[key]; ok {
			*prev = *st
			continue
		}
		index[key] = st
		states = append(states, st)
	}

	for _, rec := range history {
		st, ok := index[model.ItemKey{PurchaseOrder: rec.PurchaseOrder, PurchaseOrderItem: rec.PurchaseOrderItem}]
		if !ok {
			continue
		}
		st.invoiced = st.invoiced.Add(rec.InvoiceAmtInCoCodeCrcy)
		if rec.IsFinallyInvoiced {
			st.finallyInvoiced = true
		}
	}

	return states, nil
}

// saveOrders сохраняет заголовки заказов до записи позиций.
func (s *Service) saveOrders(ctx context.Context, states []*sourceState) error {
	seen := make(map[string]bool)
	for _, st := range states {
		if st.finallyInvoiced || seen[st.item.PurchaseOrder] {
			continue
		}
		seen[st.item.PurchaseOrder] = true
		if err := s.repo.UpsertOrder(ctx, st.order()); err != nil {
			return fmt.Errorf("save order %s: %w", st.item.PurchaseOrder, err)
		}
	}
	return nil
}

type reconcileAction int

const (
	actionNone reconcileAction = iota
	actionCreated
	actionUpdated
	actionDeleted
)

// applyState приводит сохранённую позицию к состоянию в системе закупок:
// окончательно выставленная по счёту удаляется, новая создаётся на этапе заявителя,
// у существующей обновляются только данные источника. Позиция, не найденная
// среди позиций заявителя, может быть сохранена под другим заявителем.
func (s *Service) applyState(ctx context.Context, st *sourceState, exists bool) (reconcileAction, error) {
	key := st.key()

	if !exists {
		var err error
		if exists, err = s.repo.ItemExists(ctx, key); err != nil {
			return actionNone, fmt.Errorf("check item %s: %w", key, err)
		}
	}

	if st.finallyInvoiced {
		if !exists {
			return actionNone, nil
		}
		if err := s.repo.DeleteItem(ctx, key); err != nil {
			return actionNone, fmt.Errorf("delete item %s: %w", key, err)
		}
		return actionDeleted, nil
	}

	if !exists {
		if err := s.repo.CreateItem(ctx, st.newItem()); err != nil {
			return actionNone, fmt.Errorf("create item %s: %w", key, err)
		}
		return actionCreated, nil
	}

	if _, err := s.repo.UpdateItem(ctx, key, st.sourceUpdate()); err != nil {
		return actionNone, fmt.Errorf("update item %s: %w", key, err)
	}
	return actionUpdated, nil
}

// cleanup сверяет позиции, пропавшие из выборки заявителя, по одной.
// Изменения применяются только после получения ответов по всем позициям.
// Позиция, не найденная в источнике, остаётся без изменений.
func (s *Service) cleanup(ctx context.Context, stale []model.OrderItem) error {
	if len(stale) == 0 {
		return nil
	}

	fetched := make([]*procurement.PurchaseOrderItem, len(stale))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range stale {
		key := stale[i].Key()
		g.Go(func() error {
			src, err := s.gateway.FetchItem(gctx, key.PurchaseOrder, key.PurchaseOrderItem)
			if errors.Is(err, procurement.ErrNotFound) {
				s.logger.Info("Stale item not found in source, keeping", zap.String("item", key.String()))
				return nil
			}
			if err != nil {
				return err
			}
			fetched[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("Cleanup aborted", zap.Int("stale", len(stale)), zap.Error(err))
		return err
	}

	var found []procurement.PurchaseOrderItem
	for _, src := range fetched {
		if src != nil {
			found = append(found, *src)
		}
	}

	states, err := s.collectStates(ctx, found)
	if err != nil {
		s.logger.Warn("Cleanup aborted", zap.Int("stale", len(stale)), zap.Error(err))
		return err
	}

	for _, st := range states {
		if _, err := s.applyState(ctx, st, true); err != nil {
			return err
		}
	}
	return nil
}
