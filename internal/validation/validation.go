// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

const (
	purchaseOrderLength        = 10
	maxPurchaseOrderItemLength = 5
)

// ErrInvalidAmount возвращается для нечисловой, отрицательной или слишком точной суммы.
var ErrInvalidAmount = errors.New("invalid amount")

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsValidPurchaseOrder проверяет номер заказа на закупку: ровно 10 цифр.
func IsValidPurchaseOrder(number string) bool {
	return len(number) == purchaseOrderLength && isDigits(number)
}

// IsValidPurchaseOrderItem проверяет номер позиции заказа: от 1 до 5 цифр.
func IsValidPurchaseOrderItem(number string) bool {
	return number != "" && len(number) <= maxPurchaseOrderItemLength && isDigits(number)
}

// ParseAmount разбирает неотрицательную сумму не более чем с model.AmountScale знаками после запятой.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative %s", ErrInvalidAmount, raw)
	}
	if !d.Equal(model.RoundAmount(d)) {
		return decimal.Zero, fmt.Errorf("%w: more than %d decimals in %s", ErrInvalidAmount, model.AmountScale, raw)
	}
	return d, nil
}

// New возвращает валидатор структур с правилами purchase_order, purchase_order_item и amount.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// ошибки регистрации возможны только при пустом имени тега
	_ = v.RegisterValidation("purchase_order", func(fl validator.FieldLevel) bool {
		return IsValidPurchaseOrder(fl.Field().String())
	})
	_ = v.RegisterValidation("purchase_order_item", func(fl validator.FieldLevel) bool {
		return IsValidPurchaseOrderItem(fl.Field().String())
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := ParseAmount(fl.Field().String())
		return err == nil
	})

	return v
}
