// Package service реализует бизнес-логику согласования начислений по заказам на закупку.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/fcoaccruals/internal/costcenter"
	"github.com/mmeshcher/fcoaccruals/internal/filter"
	"github.com/mmeshcher/fcoaccruals/internal/model"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
)

// ErrContextMissing возвращается, если для пользователя не удаётся определить логин SAP или МВЗ.
var (
	ErrContextMissing = errors.New("user context missing")
	// ErrRoleNotGranted возвращается, если пользователь действует от имени невыданной роли.
	ErrRoleNotGranted = errors.New("role not granted")
	// ErrItemNotEditable возвращается при изменении суммы завершённой позиции.
	ErrItemNotEditable = errors.New("order item is not editable")
	// ErrConflict возвращается, если позиция изменилась параллельным запросом.
	ErrConflict = errors.New("order item changed concurrently")
	// ErrInvalidAmount возвращается для отрицательной суммы.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Repository описывает контракт хранилища, используемый сервисом.
type Repository interface {
	Close() error
	ItemExists(ctx context.Context, key model.ItemKey) (bool, error)
	FindItem(ctx context.Context, key model.ItemKey) (*model.OrderItem, error)
	FindItems(ctx context.Context, f filter.Filter) ([]model.OrderItem, error)
	CreateItem(ctx context.Context, it *model.OrderItem) error
	UpdateItem(ctx context.Context, key model.ItemKey, upd model.ItemUpdate) (bool, error)
	DeleteItem(ctx context.Context, key model.ItemKey) error
	UpsertOrder(ctx context.Context, o *model.Order) error
	FindOrders(ctx context.Context, purchaseOrders []string) ([]model.Order, error)
	SaveContext(ctx context.Context, uc *model.UserContext) error
	FindContext(ctx context.Context, userID string) (*model.UserContext, error)
}

// Gateway описывает внешнюю систему закупок.
type Gateway interface {
	FetchItemsByRequester(ctx context.Context, requester string) ([]procurement.PurchaseOrderItem, error)
	FetchItem(ctx context.Context, purchaseOrder, purchaseOrderItem string) (*procurement.PurchaseOrderItem, error)
	FetchInvoiceHistory(ctx context.Context, keys []procurement.HistoryKey, category string) ([]procurement.HistoryRecord, error)
	FetchUserMasterData(ctx context.Context, email string) (*procurement.UserMasterData, error)
	FetchCostCenters(ctx context.Context, responsibleUser string, date time.Time) ([]procurement.CostCenter, error)
}

// AttributionResolver определяет МВЗ позиций.
type AttributionResolver interface {
	ResolveAll(ctx context.Context, items []procurement.PurchaseOrderItem) (map[model.ItemKey]costcenter.Attribution, error)
}

// Service содержит бизнес-логику сервиса согласования начислений.
type Service struct {
	repo     Repository
	gateway  Gateway
	resolver AttributionResolver
	logger   *zap.Logger
	workers  int
	now      func() time.Time

	reconcileTimeout time.Duration

	reconciles singleflight.Group
}

// NewService создаёт сервис. workers ограничивает число параллельных записей при сверке.
func NewService(repo Repository, gateway Gateway, resolver AttributionResolver, logger *zap.Logger, workers int) *Service {
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		repo:             repo,
		gateway:          gateway,
		resolver:         resolver,
		logger:           logger,
		workers:          workers,
		now:              time.Now,
		reconcileTimeout: reconcileTimeout,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// SelectRole выбирает роль запроса. Пустое имя означает роль с наивысшим приоритетом из выданных.
func SelectRole(id model.Identity, requested string) (model.Role, error) {
	if requested == "" {
		for _, r := range model.Roles {
			if id.HasRole(r) {
				return r, nil
			}
		}
		return "", ErrRoleNotGranted
	}

	role, ok := model.ParseRole(requested)
	if !ok || !id.HasRole(role) {
		return "", ErrRoleNotGranted
	}
	return role, nil
}
