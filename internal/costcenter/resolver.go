// Package costcenter определяет ответственное МВЗ позиции заказа по её учёту затрат.
package costcenter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
)

// Source описывает справочник внутренних заказов.
type Source interface {
	FetchInternalOrders(ctx context.Context, ids []string) ([]procurement.InternalOrder, error)
}

// Cache описывает необязательный кэш внутренних заказов.
type Cache interface {
	Get(ctx context.Context, ids []string) (map[string]string, error)
	Set(ctx context.Context, costCenters map[string]string) error
}

// Attribution содержит результат определения МВЗ позиции.
type Attribution struct {
	OrderID      string
	CostCenterID string
}

// Resolver определяет МВЗ для позиций заказов.
type Resolver struct {
	source Source
	cache  Cache
	logger *zap.Logger
}

// NewResolver создаёт резолвер. cache может быть nil.
func NewResolver(source Source, cache Cache, logger *zap.Logger) *Resolver {
	return &Resolver{source: source, cache: cache, logger: logger}
}

// ResolveAll определяет МВЗ для всех позиций. Внутренние заказы запрашиваются одним пакетом.
func (r *Resolver) ResolveAll(ctx context.Context, items []procurement.PurchaseOrderItem) (map[model.ItemKey]Attribution, error) {
	res := make(map[model.ItemKey]Attribution, len(items))
	orderIDs := make(map[model.ItemKey]string)
	var distinct []string
	seen := make(map[string]bool)

	for _, it := range items {
		key := model.ItemKey{PurchaseOrder: it.PurchaseOrder, PurchaseOrderItem: it.PurchaseOrderItem}

		switch it.AccountAssignmentCategory {
		case model.AccountAssignmentCostCenter:
			if len(it.AccountAssignments) > 0 {
				res[key] = Attribution{CostCenterID: it.AccountAssignments[0].CostCenter}
			}

		case model.AccountAssignmentInternalOrder:
			if len(it.AccountAssignments) == 0 || it.AccountAssignments[0].OrderID == "" {
				continue
			}
			id := strings.ToLower(it.AccountAssignments[0].OrderID)
			orderIDs[key] = it.AccountAssignments[0].OrderID
			if !seen[id] {
				seen[id] = true
				distinct = append(distinct, id)
			}
		}
	}

	if len(distinct) == 0 {
		return res, nil
	}

	costCenters, err := r.lookup(ctx, distinct)
	if err != nil {
		return nil, err
	}

	for key, orderID := range orderIDs {
		cc, ok := costCenters[strings.ToLower(orderID)]
		if !ok || cc == "" {
			// Внутренний заказ не найден: позиция остаётся без привязки.
			continue
		}
		res[key] = Attribution{OrderID: orderID, CostCenterID: cc}
	}

	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, ids []string) (map[string]string, error) {
	found := make(map[string]string, len(ids))
	missing := ids

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, ids)
		if err != nil {
			r.logger.Warn("internal order cache read failed", zap.Error(err))
		} else {
			missing = missing[:0:0]
			for _, id := range ids {
				if cc, ok := cached[id]; ok {
					found[id] = cc
					continue
				}
				missing = append(missing, id)
			}
		}
	}

	if len(missing) == 0 {
		return found, nil
	}

	orders, err := r.source.FetchInternalOrders(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve internal orders: %w", err)
	}

	fetched := make(map[string]string, len(orders))
	for _, o := range orders {
		id := strings.ToLower(o.InternalOrder)
		found[id] = o.ResponsibleCostCenter
		fetched[id] = o.ResponsibleCostCenter
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, fetched); err != nil {
			r.logger.Warn("internal order cache write failed", zap.Error(err))
		}
	}

	return found, nil
}
