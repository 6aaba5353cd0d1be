package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

func amount(d decimal.Decimal) string {
	return model.RoundAmount(d).StringFixed(model.AmountScale)
}

type contextResponse struct {
	UserID      string   `json:"userId"`
	SapUser     string   `json:"sapUser"`
	FamilyName  string   `json:"familyName,omitempty"`
	GivenName   string   `json:"givenName,omitempty"`
	CostCenters []string `json:"costCenters"`
	Roles       []string `json:"roles"`
}

func newContextResponse(id model.Identity, uc *model.UserContext) contextResponse {
	resp := contextResponse{
		UserID:      uc.UserID,
		SapUser:     uc.SapUser,
		FamilyName:  uc.FamilyName,
		GivenName:   uc.GivenName,
		CostCenters: uc.CostCenters,
		Roles:       make([]string, 0, len(id.Roles)),
	}
	if resp.CostCenters == nil {
		resp.CostCenters = []string{}
	}
	for _, r := range id.Roles {
		resp.Roles = append(resp.Roles, string(r))
	}
	return resp
}

type itemResponse struct {
	PurchaseOrder             string `json:"purchaseOrder"`
	PurchaseOrderItem         string `json:"purchaseOrderItem"`
	PurchaseOrderItemText     string `json:"purchaseOrderItemText"`
	AccountAssignmentCategory string `json:"accountAssignmentCategory"`
	OrderID                   string `json:"orderId,omitempty"`
	CostCenterID              string `json:"costCenterId,omitempty"`
	Requester                 string `json:"requester"`
	NetPriceAmount            string `json:"netPriceAmount"`
	OrderQuantity             string `json:"orderQuantity"`
	TotalInvoiceAmount        string `json:"totalInvoiceAmount"`
	OpenTotalAmount           string `json:"openTotalAmount"`
	OpenTotalAmountEditable   string `json:"openTotalAmountEditable"`
	ProcessingState           string `json:"processingState"`
	ProcessingStateText       string `json:"processingStateText"`
	ApprovedByCCR             bool   `json:"approvedByCCR"`
	ApprovedByCON             bool   `json:"approvedByCON"`
	ApprovedByACC             bool   `json:"approvedByACC"`
	Highlight                 string `json:"highlight"`
	Editable                  bool   `json:"editable"`
}

func newItemResponse(it model.OrderItem) itemResponse {
	return itemResponse{
		PurchaseOrder:             it.PurchaseOrder,
		PurchaseOrderItem:         it.PurchaseOrderItem,
		PurchaseOrderItemText:     it.PurchaseOrderItemText,
		AccountAssignmentCategory: it.AccountAssignmentCategory,
		OrderID:                   it.OrderID,
		CostCenterID:              it.CostCenterID,
		Requester:                 it.Requester,
		NetPriceAmount:            amount(it.NetPriceAmount),
		OrderQuantity:             amount(it.OrderQuantity),
		TotalInvoiceAmount:        amount(it.TotalInvoiceAmount),
		OpenTotalAmount:           amount(it.OpenTotalAmount),
		OpenTotalAmountEditable:   amount(it.OpenTotalAmountEditable),
		ProcessingState:           string(it.ProcessingState),
		ProcessingStateText:       it.ProcessingState.String(),
		ApprovedByCCR:             it.ApprovedByCCR,
		ApprovedByCON:             it.ApprovedByCON,
		ApprovedByACC:             it.ApprovedByACC,
		Highlight:                 string(it.Highlight),
		Editable:                  it.Editable,
	}
}

type orderResponse struct {
	PurchaseOrder           string         `json:"purchaseOrder"`
	Supplier                string         `json:"supplier"`
	SupplierText            string         `json:"supplierText"`
	CreationDate            string         `json:"creationDate,omitempty"`
	OpenTotalAmount         string         `json:"openTotalAmount"`
	OpenTotalAmountEditable string         `json:"openTotalAmountEditable"`
	Highlight               string         `json:"highlight"`
	Items                   []itemResponse `json:"items"`
}

func newOrderResponse(o model.Order) orderResponse {
	resp := orderResponse{
		PurchaseOrder:           o.PurchaseOrder,
		Supplier:                o.Supplier,
		SupplierText:            o.SupplierText,
		OpenTotalAmount:         amount(o.OpenTotalAmount),
		OpenTotalAmountEditable: amount(o.OpenTotalAmountEditable),
		Highlight:               string(o.Highlight),
		Items:                   make([]itemResponse, 0, len(o.Items)),
	}
	if !o.CreationDate.IsZero() {
		resp.CreationDate = o.CreationDate.Format(time.DateOnly)
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, newItemResponse(it))
	}
	return resp
}

func newOrdersResponse(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	return resp
}
