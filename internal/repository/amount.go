package repository

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

// Денежные колонки NUMERIC читаются как текст и пишутся строкой:
// преобразование в decimal.Decimal выполняется только здесь.

func amountArg(d decimal.Decimal) string {
	return model.RoundAmount(d).StringFixed(model.AmountScale)
}

func parseAmount(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return d, nil
}

type amountColumns struct {
	netPrice, quantity, invoiced, open, openEditable string
}

func (a amountColumns) apply(it *model.OrderItem) error {
	var err error
	if it.NetPriceAmount, err = parseAmount("net_price_amount", a.netPrice); err != nil {
		return err
	}
	if it.OrderQuantity, err = parseAmount("order_quantity", a.quantity); err != nil {
		return err
	}
	if it.TotalInvoiceAmount, err = parseAmount("total_invoice_amount", a.invoiced); err != nil {
		return err
	}
	if it.OpenTotalAmount, err = parseAmount("open_total_amount", a.open); err != nil {
		return err
	}
	if it.OpenTotalAmountEditable, err = parseAmount("open_total_amount_editable", a.openEditable); err != nil {
		return err
	}
	return nil
}
