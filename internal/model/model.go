// Package model содержит доменные сущности сервиса согласования начислений.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale задаёт число знаков после запятой для всех денежных сумм.
const AmountScale = 3

// RoundAmount округляет сумму до AmountScale знаков.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// Категории учёта затрат позиции заказа в системе закупок.
const (
	AccountAssignmentInternalOrder = "F"
	AccountAssignmentCostCenter    = "K"
	AccountAssignmentInvestType1   = "1"
	AccountAssignmentInvestTypeA   = "A"
)

// IsInvestment сообщает, относится ли категория к инвестиционным.
func IsInvestment(category string) bool {
	return category == AccountAssignmentInvestType1 || category == AccountAssignmentInvestTypeA
}

// HistoryCategoryQuantityInvoiced задаёт категорию истории заказа «счёт по количеству».
const HistoryCategoryQuantityInvoiced = "Q"

// ProcessingState описывает этап согласования позиции.
type ProcessingState string

const (
	StateInitial               ProcessingState = "0"
	StateRequester             ProcessingState = "1"
	StateCostCenterResponsible ProcessingState = "2"
	StateControlling           ProcessingState = "3"
	StateAccounting            ProcessingState = "4"
	StateFinal                 ProcessingState = "5"
)

var stateOrder = []ProcessingState{
	StateInitial,
	StateRequester,
	StateCostCenterResponsible,
	StateControlling,
	StateAccounting,
	StateFinal,
}

// Index возвращает порядковый номер этапа или -1 для неизвестного кода.
func (s ProcessingState) Index() int {
	for i, st := range stateOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid сообщает, известен ли код этапа.
func (s ProcessingState) Valid() bool {
	return s.Index() >= 0
}

func (s ProcessingState) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateRequester:
		return "USER"
	case StateCostCenterResponsible:
		return "CCR"
	case StateControlling:
		return "CONTROLLING"
	case StateAccounting:
		return "ACCOUNTING"
	case StateFinal:
		return "FINAL"
	}
	return "UNKNOWN(" + string(s) + ")"
}

// Highlight описывает производный статус «светофора» позиции или заказа.
type Highlight string

const (
	HighlightNone        Highlight = "None"
	HighlightInformation Highlight = "Information"
	HighlightSuccess     Highlight = "Success"
)

// Role задаёт роль, от имени которой действует пользователь.
type Role string

const (
	RoleRequester             Role = "requester"
	RoleCostCenterResponsible Role = "ccr"
	RoleControlling           Role = "controlling"
	RoleAccounting            Role = "accounting"
)

// Roles перечисляет роли в порядке приоритета.
var Roles = []Role{RoleRequester, RoleCostCenterResponsible, RoleControlling, RoleAccounting}

// ParseRole разбирает строковое имя роли.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// ItemKey содержит составной ключ позиции заказа.
type ItemKey struct {
	PurchaseOrder     string `json:"purchaseOrder"`
	PurchaseOrderItem string `json:"purchaseOrderItem"`
}

func (k ItemKey) String() string {
	return k.PurchaseOrder + "/" + k.PurchaseOrderItem
}

// OrderItem описывает позицию заказа на закупку и её состояние согласования.
type OrderItem struct {
	PurchaseOrder             string
	PurchaseOrderItem         string
	Supplier                  string
	SupplierText              string
	PurchaseOrderItemText     string
	AccountAssignmentCategory string
	OrderID                   string
	CostCenterID              string
	Requester                 string

	NetPriceAmount          decimal.Decimal
	OrderQuantity           decimal.Decimal
	TotalInvoiceAmount      decimal.Decimal
	OpenTotalAmount         decimal.Decimal
	OpenTotalAmountEditable decimal.Decimal

	ProcessingState ProcessingState
	ApprovedByCCR   bool
	ApprovedByCON   bool
	ApprovedByACC   bool
	Highlight       Highlight
	Editable        bool

	UpdatedAt time.Time
}

// Key возвращает составной ключ позиции.
func (i *OrderItem) Key() ItemKey {
	return ItemKey{PurchaseOrder: i.PurchaseOrder, PurchaseOrderItem: i.PurchaseOrderItem}
}

// Order агрегирует позиции одного заказа на закупку.
type Order struct {
	PurchaseOrder           string
	Supplier                string
	SupplierText            string
	CreationDate            time.Time
	OpenTotalAmount         decimal.Decimal
	OpenTotalAmountEditable decimal.Decimal
	Highlight               Highlight
	Items                   []OrderItem
}

// ItemUpdate содержит частичное обновление позиции. Nil-поля не изменяются.
type ItemUpdate struct {
	SupplierText              *string
	PurchaseOrderItemText     *string
	AccountAssignmentCategory *string
	OrderID                   *string
	CostCenterID              *string
	NetPriceAmount            *decimal.Decimal
	OrderQuantity             *decimal.Decimal
	TotalInvoiceAmount        *decimal.Decimal
	OpenTotalAmount           *decimal.Decimal
	OpenTotalAmountEditable   *decimal.Decimal

	ProcessingState *ProcessingState
	ApprovedByCCR   *bool
	ApprovedByCON   *bool
	ApprovedByACC   *bool
	Highlight       *Highlight
	Editable        *bool

	// ExpectState ограничивает обновление позициями в указанном этапе.
	ExpectState *ProcessingState
}

// Identity содержит пользователя запроса и его роли, полученные от внешнего шлюза.
type Identity struct {
	UserID string
	Roles  []Role
}

// HasRole сообщает, выдана ли пользователю роль.
func (id Identity) HasRole(role Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserContext содержит разрешённые данные пользователя: логин SAP и ответственность за МВЗ.
type UserContext struct {
	UserID      string
	SapUser     string
	FamilyName  string
	GivenName   string
	CostCenters []string
}

// OwnsCostCenter сообщает, отвечает ли пользователь за указанное МВЗ.
func (uc *UserContext) OwnsCostCenter(costCenter string) bool {
	for _, cc := range uc.CostCenters {
		if cc == costCenter {
			return true
		}
	}
	return false
}
