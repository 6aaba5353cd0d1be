// Package repository содержит реализацию хранилища позиций, заказов и контекстов пользователей в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/fcoaccruals/internal/filter"
	"github.com/mmeshcher/fcoaccruals/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrItemNotFound возвращается, если позиция заказа не найдена.
var (
	ErrItemNotFound = errors.New("order item not found")
	// ErrContextNotFound возвращается, если контекст пользователя не сохранён.
	ErrContextNotFound = errors.New("user context not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const itemColumns = `purchase_order, purchase_order_item, supplier, supplier_text, item_text,
	account_assignment_category, order_id, cost_center_id, requester,
	net_price_amount::text, order_quantity::text, total_invoice_amount::text,
	open_total_amount::text, open_total_amount_editable::text,
	processing_state, approved_by_ccr, approved_by_con, approved_by_acc, highlight, editable, updated_at`

func scanItem(row pgx.Row) (*model.OrderItem, error) {
	var (
		it        model.OrderItem
		amounts   amountColumns
		state     string
		highlight string
	)

	err := row.Scan(
		&it.PurchaseOrder, &it.PurchaseOrderItem, &it.Supplier, &it.SupplierText, &it.PurchaseOrderItemText,
		&it.AccountAssignmentCategory, &it.OrderID, &it.CostCenterID, &it.Requester,
		&amounts.netPrice, &amounts.quantity, &amounts.invoiced, &amounts.open, &amounts.openEditable,
		&state, &it.ApprovedByCCR, &it.ApprovedByCON, &it.ApprovedByACC, &highlight, &it.Editable, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := amounts.apply(&it); err != nil {
		return nil, err
	}
	if it.ProcessingState, err = parseState(state); err != nil {
		return nil, err
	}
	it.Highlight = model.Highlight(highlight)

	return &it, nil
}

func parseState(raw string) (model.ProcessingState, error) {
	state := model.ProcessingState(raw)
	if !state.Valid() {
		return "", fmt.Errorf("unknown processing state %q", raw)
	}
	return state, nil
}

// ItemExists сообщает, сохранена ли позиция.
func (r *PostgresRepository) ItemExists(ctx context.Context, key model.ItemKey) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM order_items WHERE purchase_order = $1 AND purchase_order_item = $2)`,
		key.PurchaseOrder, key.PurchaseOrderItem,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("item exists: %w", err)
	}
	return exists, nil
}

// FindItem возвращает позицию по ключу.
func (r *PostgresRepository) FindItem(ctx context.Context, key model.ItemKey) (*model.OrderItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE purchase_order = $1 AND purchase_order_item = $2`,
		key.PurchaseOrder, key.PurchaseOrderItem,
	)

	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, key)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// FindItems возвращает позиции, удовлетворяющие фильтру.
func (r *PostgresRepository) FindItems(ctx context.Context, f filter.Filter) ([]model.OrderItem, error) {
	args := filter.NewArgs()
	where := f.SQL(args)

	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE `+where+` ORDER BY purchase_order DESC, purchase_order_item`,
		args.Values()...,
	)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// CreateItem сохраняет новую позицию.
func (r *PostgresRepository) CreateItem(ctx context.Context, it *model.OrderItem) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO order_items (
				purchase_order, purchase_order_item, supplier, supplier_text, item_text,
				account_assignment_category, order_id, cost_center_id, requester,
				net_price_amount, order_quantity, total_invoice_amount, open_total_amount, open_total_amount_editable,
				processing_state, approved_by_ccr, approved_by_con, approved_by_acc, highlight, editable
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
				$10::numeric, $11::numeric, $12::numeric, $13::numeric, $14::numeric,
				$15, $16, $17, $18, $19, $20)
			ON CONFLICT (purchase_order, purchase_order_item) DO NOTHING`,
			it.PurchaseOrder, it.PurchaseOrderItem, it.Supplier, it.SupplierText, it.PurchaseOrderItemText,
			it.AccountAssignmentCategory, it.OrderID, it.CostCenterID, it.Requester,
			amountArg(it.NetPriceAmount), amountArg(it.OrderQuantity), amountArg(it.TotalInvoiceAmount),
			amountArg(it.OpenTotalAmount), amountArg(it.OpenTotalAmountEditable),
			string(it.ProcessingState), it.ApprovedByCCR, it.ApprovedByCON, it.ApprovedByACC,
			string(it.Highlight), it.Editable,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
}

// UpdateItem применяет частичное обновление. Если задан ExpectState, обновление выполняется
// только для позиции в этом этапе. Возвращает false, если ни одна строка не изменилась.
func (r *PostgresRepository) UpdateItem(ctx context.Context, key model.ItemKey, upd model.ItemUpdate) (bool, error) {
	var (
		sets []string
		args = []any{key.PurchaseOrder, key.PurchaseOrderItem}
	)

	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setAmount := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d::numeric", column, len(args)))
	}

	if upd.SupplierText != nil {
		set("supplier_text", *upd.SupplierText)
	}
	if upd.PurchaseOrderItemText != nil {
		set("item_text", *upd.PurchaseOrderItemText)
	}
	if upd.AccountAssignmentCategory != nil {
		set("account_assignment_category", *upd.AccountAssignmentCategory)
	}
	if upd.OrderID != nil {
		set("order_id", *upd.OrderID)
	}
	if upd.CostCenterID != nil {
		set("cost_center_id", *upd.CostCenterID)
	}
	if upd.NetPriceAmount != nil {
		setAmount("net_price_amount", amountArg(*upd.NetPriceAmount))
	}
	if upd.OrderQuantity != nil {
		setAmount("order_quantity", amountArg(*upd.OrderQuantity))
	}
	if upd.TotalInvoiceAmount != nil {
		setAmount("total_invoice_amount", amountArg(*upd.TotalInvoiceAmount))
	}
	if upd.OpenTotalAmount != nil {
		setAmount("open_total_amount", amountArg(*upd.OpenTotalAmount))
	}
	if upd.OpenTotalAmountEditable != nil {
		setAmount("open_total_amount_editable", amountArg(*upd.OpenTotalAmountEditable))
	}
	if upd.ProcessingState != nil {
		set("processing_state", string(*upd.ProcessingState))
	}
	if upd.ApprovedByCCR != nil {
		set("approved_by_ccr", *upd.ApprovedByCCR)
	}
	if upd.ApprovedByCON != nil {
		set("approved_by_con", *upd.ApprovedByCON)
	}
	if upd.ApprovedByACC != nil {
		set("approved_by_acc", *upd.ApprovedByACC)
	}
	if upd.Highlight != nil {
		set("highlight", string(*upd.Highlight))
	}
	if upd.Editable != nil {
		set("editable", *upd.Editable)
	}

	if len(sets) == 0 {
		return false, nil
	}

	query := `UPDATE order_items SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
		WHERE purchase_order = $1 AND purchase_order_item = $2`
	if upd.ExpectState != nil {
		args = append(args, string(*upd.ExpectState))
		query += fmt.Sprintf(" AND processing_state = $%d", len(args))
	}

	var updated bool
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		updated = tag.RowsAffected() == 1
		return nil
	})
	return updated, err
}

// DeleteItem удаляет позицию.
func (r *PostgresRepository) DeleteItem(ctx context.Context, key model.ItemKey) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM order_items WHERE purchase_order = $1 AND purchase_order_item = $2`,
			key.PurchaseOrder, key.PurchaseOrderItem,
		)
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return nil
	})
}

// UpsertOrder создаёт или обновляет заголовок заказа.
func (r *PostgresRepository) UpsertOrder(ctx context.Context, o *model.Order) error {
	var creationDate *time.Time
	if !o.CreationDate.IsZero() {
		creationDate = &o.CreationDate
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO orders (purchase_order, supplier, supplier_text, creation_date)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (purchase_order) DO UPDATE
			 SET supplier_text = EXCLUDED.supplier_text, updated_at = NOW()`,
			o.PurchaseOrder, o.Supplier, o.SupplierText, creationDate,
		)
		if err != nil {
			return fmt.Errorf("upsert order: %w", err)
		}
		return nil
	})
}

// FindOrders возвращает заголовки заказов по номерам.
func (r *PostgresRepository) FindOrders(ctx context.Context, purchaseOrders []string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT purchase_order, supplier, supplier_text, creation_date
		 FROM orders
		 WHERE purchase_order = ANY($1)
		 ORDER BY purchase_order DESC`,
		purchaseOrders,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o            model.Order
			creationDate *time.Time
		)
		if err := rows.Scan(&o.PurchaseOrder, &o.Supplier, &o.SupplierText, &creationDate); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if creationDate != nil {
			o.CreationDate = *creationDate
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// SaveContext сохраняет контекст пользователя вместе с его МВЗ.
func (r *PostgresRepository) SaveContext(ctx context.Context, uc *model.UserContext) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO contexts (user_id, sap_user, family_name, given_name)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO UPDATE
			 SET sap_user = EXCLUDED.sap_user, family_name = EXCLUDED.family_name,
			     given_name = EXCLUDED.given_name, updated_at = NOW()`,
			uc.UserID, uc.SapUser, uc.FamilyName, uc.GivenName,
		)
		if err != nil {
			return fmt.Errorf("upsert context: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM context_cost_centers WHERE user_id = $1`, uc.UserID); err != nil {
			return fmt.Errorf("clear cost centers: %w", err)
		}

		for _, cc := range uc.CostCenters {
			_, err := tx.Exec(ctx,
				`INSERT INTO context_cost_centers (user_id, cost_center) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				uc.UserID, cc,
			)
			if err != nil {
				return fmt.Errorf("insert cost center: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// FindContext возвращает сохранённый контекст пользователя.
func (r *PostgresRepository) FindContext(ctx context.Context, userID string) (*model.UserContext, error) {
	uc := model.UserContext{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT sap_user, family_name, given_name FROM contexts WHERE user_id = $1`,
		userID,
	).Scan(&uc.SapUser, &uc.FamilyName, &uc.GivenName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContextNotFound
		}
		return nil, fmt.Errorf("get context: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT cost_center FROM context_cost_centers WHERE user_id = $1 ORDER BY cost_center`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cost centers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc string
		if err := rows.Scan(&cc); err != nil {
			return nil, fmt.Errorf("scan cost center: %w", err)
		}
		uc.CostCenters = append(uc.CostCenters, cc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &uc, nil
}
