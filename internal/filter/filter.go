// Package filter содержит составные предикаты над позициями заказов.
// Каждый фильтр умеет проверять позицию в памяти и строить SQL-условие.
package filter

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

// Field задаёт имя поля позиции, по которому допускается фильтрация.
type Field string

const (
	FieldPurchaseOrder     Field = "purchase_order"
	FieldPurchaseOrderItem Field = "purchase_order_item"
	FieldRequester         Field = "requester"
	FieldProcessingState   Field = "processing_state"
	FieldCostCenterID      Field = "cost_center_id"
)

func (f Field) value(it *model.OrderItem) string {
	switch f {
	case FieldPurchaseOrder:
		return it.PurchaseOrder
	case FieldPurchaseOrderItem:
		return it.PurchaseOrderItem
	case FieldRequester:
		return it.Requester
	case FieldProcessingState:
		return string(it.ProcessingState)
	case FieldCostCenterID:
		return it.CostCenterID
	}
	panic(fmt.Sprintf("filter: unknown field %q", string(f)))
}

// Args накапливает позиционные параметры SQL-запроса.
type Args struct {
	values []any
}

// NewArgs создаёт набор параметров; initial занимают первые позиции.
func NewArgs(initial ...any) *Args {
	return &Args{values: append([]any(nil), initial...)}
}

func (a *Args) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// Values возвращает накопленные параметры.
func (a *Args) Values() []any {
	return a.values
}

// Filter описывает предикат над позицией заказа.
type Filter interface {
	Match(it *model.OrderItem) bool
	SQL(args *Args) string
}

type compare struct {
	field Field
	op    string
	value string
}

func (c compare) Match(it *model.OrderItem) bool {
	v := c.field.value(it)
	switch c.op {
	case "=":
		return v == c.value
	case "<>":
		return v != c.value
	case ">=":
		return v >= c.value
	case "<=":
		return v <= c.value
	}
	return false
}

func (c compare) SQL(args *Args) string {
	return string(c.field) + " " + c.op + " " + args.add(c.value)
}

// Eq выбирает позиции, у которых поле равно value.
func Eq(field Field, value string) Filter {
	return compare{field: field, op: "=", value: value}
}

// Ne выбирает позиции, у которых поле не равно value.
func Ne(field Field, value string) Filter {
	return compare{field: field, op: "<>", value: value}
}

// Between выбирает позиции, у которых поле лежит в [from, to] при строковом сравнении.
func Between(field Field, from, to string) Filter {
	return All(compare{field: field, op: ">=", value: from}, compare{field: field, op: "<=", value: to})
}

type in struct {
	field  Field
	values []string
}

func (f in) Match(it *model.OrderItem) bool {
	v := f.field.value(it)
	for _, candidate := range f.values {
		if v == candidate {
			return true
		}
	}
	return false
}

func (f in) SQL(args *Args) string {
	if len(f.values) == 0 {
		return "FALSE"
	}
	return string(f.field) + " = ANY(" + args.add(f.values) + ")"
}

// In выбирает позиции, у которых поле совпадает с одним из values. Пустой список не совпадает ни с чем.
func In(field Field, values ...string) Filter {
	return in{field: field, values: append([]string(nil), values...)}
}

type group struct {
	op    string
	parts []Filter
}

func (g group) Match(it *model.OrderItem) bool {
	for _, p := range g.parts {
		matched := p.Match(it)
		if g.op == "OR" && matched {
			return true
		}
		if g.op == "AND" && !matched {
			return false
		}
	}
	return g.op == "AND"
}

func (g group) SQL(args *Args) string {
	if len(g.parts) == 1 {
		return g.parts[0].SQL(args)
	}
	clauses := make([]string, 0, len(g.parts))
	for _, p := range g.parts {
		clauses = append(clauses, "("+p.SQL(args)+")")
	}
	return strings.Join(clauses, " "+g.op+" ")
}

// All объединяет фильтры через AND.
func All(first Filter, rest ...Filter) Filter {
	return group{op: "AND", parts: append([]Filter{first}, rest...)}
}

// Any объединяет фильтры через OR.
func Any(first Filter, rest ...Filter) Filter {
	return group{op: "OR", parts: append([]Filter{first}, rest...)}
}

type not struct {
	inner Filter
}

func (n not) Match(it *model.OrderItem) bool {
	return !n.inner.Match(it)
}

func (n not) SQL(args *Args) string {
	return "NOT (" + n.inner.SQL(args) + ")"
}

// Not инвертирует фильтр.
func Not(f Filter) Filter {
	return not{inner: f}
}

// ForKey выбирает одну позицию по составному ключу.
func ForKey(key model.ItemKey) Filter {
	return All(Eq(FieldPurchaseOrder, key.PurchaseOrder), Eq(FieldPurchaseOrderItem, key.PurchaseOrderItem))
}
