package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrderItem описывает позицию заказа в системе закупок.
type PurchaseOrderItem struct {
	PurchaseOrder             string              `json:"PurchaseOrder"`
	PurchaseOrderItem         string              `json:"PurchaseOrderItem"`
	PurchaseOrderItemText     string              `json:"PurchaseOrderItemText"`
	AccountAssignmentCategory string              `json:"AccountAssignmentCategory"`
	RequisitionerName         string              `json:"RequisitionerName"`
	NetPriceAmount            decimal.Decimal     `json:"NetPriceAmount"`
	OrderQuantity             decimal.Decimal     `json:"OrderQuantity"`
	IsFinallyInvoiced         bool                `json:"IsFinallyInvoiced"`
	Header                    PurchaseOrderHeader `json:"to_PurchaseOrder"`
	AccountAssignments        []AccountAssignment `json:"to_AccountAssignment"`
}

// PurchaseOrderHeader описывает заголовок заказа на закупку.
type PurchaseOrderHeader struct {
	PurchaseOrder string `json:"PurchaseOrder"`
	Supplier      string `json:"Supplier"`
	AddressName   string `json:"AddressName"`
	CreationDate  string `json:"CreationDate"`
}

// CreationTime разбирает дату создания заказа (YYYY-MM-DD с необязательным временем).
func (h PurchaseOrderHeader) CreationTime() (time.Time, bool) {
	if len(h.CreationDate) < len(time.DateOnly) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, h.CreationDate[:len(time.DateOnly)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AccountAssignment описывает учёт затрат позиции.
type AccountAssignment struct {
	OrderID    string `json:"OrderID"`
	CostCenter string `json:"CostCenter"`
}

// HistoryKey идентифицирует позицию при запросе истории.
type HistoryKey struct {
	PurchaseOrder     string
	PurchaseOrderItem string
}

// HistoryRecord описывает запись истории заказа, например входящий счёт.
type HistoryRecord struct {
	PurchaseOrder             string          `json:"PurchaseOrder"`
	PurchaseOrderItem         string          `json:"PurchaseOrderItem"`
	PurchasingHistoryCategory string          `json:"PurchasingHistoryCategory"`
	InvoiceAmtInCoCodeCrcy    decimal.Decimal `json:"InvoiceAmtInCoCodeCrcy"`
	IsFinallyInvoiced         bool            `json:"IsFinallyInvoiced"`
}

// InternalOrder описывает внутренний заказ и ответственное за него МВЗ.
type InternalOrder struct {
	InternalOrder         string `json:"InternalOrder"`
	ResponsibleCostCenter string `json:"ResponsibleCostCenter"`
}

// UserMasterData содержит кадровые мастер-данные пользователя.
type UserMasterData struct {
	Bname      string `json:"Bname"`
	EmailLower string `json:"EmailLower"`
	FamilyName string `json:"FamilyName"`
	GivenName  string `json:"GivenName"`
}

// CostCenter описывает МВЗ с ответственным пользователем.
type CostCenter struct {
	CostCenter             string `json:"CostCenter"`
	CostCtrResponsibleUser string `json:"CostCtrResponsibleUser"`
}
