package costcenter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/fcoaccruals/internal/cache"
	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
)

type stubSource struct {
	orders []procurement.InternalOrder
	err    error
	calls  [][]string
}

func (s *stubSource) FetchInternalOrders(ctx context.Context, ids []string) ([]procurement.InternalOrder, error) {
	s.calls = append(s.calls, append([]string(nil), ids...))
	return s.orders, s.err
}

func poItem(item, category string, assignment procurement.AccountAssignment) procurement.PurchaseOrderItem {
	return procurement.PurchaseOrderItem{
		PurchaseOrder:             "4500000001",
		PurchaseOrderItem:         item,
		AccountAssignmentCategory: category,
		AccountAssignments:        []procurement.AccountAssignment{assignment},
	}
}

func key(item string) model.ItemKey {
	return model.ItemKey{PurchaseOrder: "4500000001", PurchaseOrderItem: item}
}

func TestResolveAll(t *testing.T) {
	src := &stubSource{
		orders: []procurement.InternalOrder{{InternalOrder: "io100", ResponsibleCostCenter: "CC900"}},
	}
	r := NewResolver(src, nil, zap.NewNop())

	items := []procurement.PurchaseOrderItem{
		poItem("10", model.AccountAssignmentCostCenter, procurement.AccountAssignment{CostCenter: "CC100"}),
		poItem("20", model.AccountAssignmentInternalOrder, procurement.AccountAssignment{OrderID: "IO100"}),
		poItem("30", model.AccountAssignmentInternalOrder, procurement.AccountAssignment{OrderID: "io100"}),
		poItem("40", model.AccountAssignmentInternalOrder, procurement.AccountAssignment{OrderID: "IO404"}),
		poItem("50", "P", procurement.AccountAssignment{CostCenter: "CC555"}),
	}

	res, err := r.ResolveAll(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, Attribution{CostCenterID: "CC100"}, res[key("10")])
	assert.Equal(t, Attribution{OrderID: "IO100", CostCenterID: "CC900"}, res[key("20")])
	assert.Equal(t, Attribution{OrderID: "io100", CostCenterID: "CC900"}, res[key("30")])
	assert.Equal(t, Attribution{}, res[key("40")], "unknown internal order resolves to empty")
	assert.Equal(t, Attribution{}, res[key("50")], "other categories resolve to empty")

	require.Len(t, src.calls, 1, "one batched lookup for all internal orders")
	assert.ElementsMatch(t, []string{"io100", "io404"}, src.calls[0])
}

func TestResolveAll_NoInternalOrdersSkipsLookup(t *testing.T) {
	src := &stubSource{}
	r := NewResolver(src, nil, zap.NewNop())

	_, err := r.ResolveAll(context.Background(), []procurement.PurchaseOrderItem{
		poItem("10", model.AccountAssignmentCostCenter, procurement.AccountAssignment{CostCenter: "CC100"}),
	})
	require.NoError(t, err)
	assert.Empty(t, src.calls)
}

func TestResolveAll_SourceError(t *testing.T) {
	src := &stubSource{err: procurement.ErrSourceUnavailable}
	r := NewResolver(src, nil, zap.NewNop())

	_, err := r.ResolveAll(context.Background(), []procurement.PurchaseOrderItem{
		poItem("20", model.AccountAssignmentInternalOrder, procurement.AccountAssignment{OrderID: "IO100"}),
	})
	assert.True(t, errors.Is(err, procurement.ErrSourceUnavailable))
}

func TestResolveAll_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewInternalOrderCache(client, time.Hour)

	src := &stubSource{
		orders: []procurement.InternalOrder{{InternalOrder: "IO100", ResponsibleCostCenter: "CC900"}},
	}
	r := NewResolver(src, c, zap.NewNop())

	items := []procurement.PurchaseOrderItem{
		poItem("20", model.AccountAssignmentInternalOrder, procurement.AccountAssignment{OrderID: "IO100"}),
	}

	for range 2 {
		res, err := r.ResolveAll(context.Background(), items)
		require.NoError(t, err)
		assert.Equal(t, "CC900", res[key("20")].CostCenterID)
	}

	assert.Len(t, src.calls, 1, "second pass is served from the cache")
}
