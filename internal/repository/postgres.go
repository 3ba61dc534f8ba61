// Package repository contém o acesso aos dados da lanchonete em PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrOrderNotFound é retornado quando o pedido não existe.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientStock é retornado quando o estoque mudou desde a
	// última leitura e não cobre mais o pedido.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotFound é retornado quando um produto referenciado não existe.
	ErrProductNotFound = errors.New("product not found")
)

// PostgresRepository dá acesso ao armazenamento de dados em PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository cria o repositório e inicializa o esquema do banco
// através das migrações embutidas.
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

// Close fecha o pool de conexões com o banco.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListProducts retorna o cardápio completo na ordem do nome.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_cents, cost_cents, stock FROM products ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.CostCents, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// GetProductsByIDs retorna os produtos indexados por id.
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_cents, cost_cents, stock FROM products WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products by ids: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.CostCents, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// CreateOrder grava o pedido e seus itens e baixa o estoque na mesma
// transação. Estoque insuficiente cancela a transação inteira.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range o.Items {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
				return 0, fmt.Errorf("%w: product %d", ErrInsufficientStock, item.ProductID)
			}
			return 0, fmt.Errorf("decrement stock: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, item.ProductID,
			).Scan(&exists); err != nil {
				return 0, fmt.Errorf("check product: %w", err)
			}
			if !exists {
				return 0, fmt.Errorf("%w: product %d", ErrProductNotFound, item.ProductID)
			}
			return 0, fmt.Errorf("%w: product %d", ErrInsufficientStock, item.ProductID)
		}
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders
		     (customer_name, subtotal_cents, discount_cents, total_cents,
		      payment_method, surcharge_cost_cents, status, placed_at_counter)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		o.CustomerName, o.SubtotalCents, o.DiscountCents, o.TotalCents,
		o.PaymentMethod, o.SurchargeCostCents, string(o.Status), o.PlacedAtCounter,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items
			     (order_id, product_id, name, quantity, unit_price_cents, unit_cost_cents)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, item.ProductID, item.Name, item.Quantity, item.UnitPriceCents, item.UnitCostCents,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetOrder retorna o pedido com seus itens.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, customer_name, subtotal_cents, discount_cents, total_cents,
		        payment_method, surcharge_cost_cents, status, placed_at_counter, created_at
		 FROM orders WHERE id = $1`,
		id,
	)

	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerName, &o.SubtotalCents, &o.DiscountCents, &o.TotalCents,
		&o.PaymentMethod, &o.SurchargeCostCents, &status, &o.PlacedAtCounter, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	items, err := r.orderItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]

	return &o, nil
}

// ListOrders retorna os pedidos nos status informados, mais antigos primeiro.
func (r *PostgresRepository) ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_name, subtotal_cents, discount_cents, total_cents,
		        payment_method, surcharge_cost_cents, status, placed_at_counter, created_at
		 FROM orders
		 WHERE status = ANY($1)
		 ORDER BY created_at`,
		filter,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}

	return r.attachItems(ctx, orders)
}

// ListOrdersAfter retorna os pedidos criados depois do id informado, usado
// pela vigilância de novos pedidos.
func (r *PostgresRepository) ListOrdersAfter(ctx context.Context, id int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_name, subtotal_cents, discount_cents, total_cents,
		        payment_method, surcharge_cost_cents, status, placed_at_counter, created_at
		 FROM orders
		 WHERE id > $1
		 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders after: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		err := rows.Scan(&o.ID, &o.CustomerName, &o.SubtotalCents, &o.DiscountCents, &o.TotalCents,
			&o.PaymentMethod, &o.SurchargeCostCents, &status, &o.PlacedAtCounter, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func (r *PostgresRepository) attachItems(ctx context.Context, orders []model.Order) ([]model.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	items, err := r.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *PostgresRepository) orderItems(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, name, quantity, unit_price_cents, unit_cost_cents
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY id`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]model.OrderItem)
	for rows.Next() {
		var orderID int64
		var it model.OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Quantity, &it.UnitPriceCents, &it.UnitCostCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderStatus grava o novo status e, quando informados, o método de
// pagamento e o custo da taxa.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, paymentMethod string, surchargeCents int64) error {
	var cmdTag pgconn.CommandTag
	var err error

	if paymentMethod == "" {
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1`,
			id, string(status),
		)
	} else {
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE orders SET status = $2, payment_method = $3, surcharge_cost_cents = $4 WHERE id = $1`,
			id, string(status), paymentMethod, surchargeCents,
		)
	}
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// DeleteOrderAndRestock devolve as quantidades dos itens ao estoque e
// remove o pedido, tudo na mesma transação.
func (r *PostgresRepository) DeleteOrderAndRestock(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM order_items WHERE order_id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}

	type restock struct {
		productID int64
		quantity  int
	}
	var restocks []restock
	for rows.Next() {
		var rs restock
		if err := rows.Scan(&rs.productID, &rs.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		restocks = append(restocks, rs)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	for _, rs := range restocks {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $2 WHERE id = $1`,
			rs.productID, rs.quantity,
		); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// PaymentRates retorna o percentual de taxa por método de pagamento.
func (r *PostgresRepository) PaymentRates(ctx context.Context) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT method, percent FROM payment_rates`)
	if err != nil {
		return nil, fmt.Errorf("select payment rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[string]float64)
	for rows.Next() {
		var method string
		var percent float64
		if err := rows.Scan(&method, &percent); err != nil {
			return nil, fmt.Errorf("scan payment rate: %w", err)
		}
		rates[method] = percent
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rates, nil
}

// SaveSubscription registra (ou atualiza) uma inscrição de notificação.
func (r *PostgresRepository) SaveSubscription(ctx context.Context, sub model.PushSubscription) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO push_subscriptions (endpoint, auth, p256dh)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (endpoint) DO UPDATE SET auth = $2, p256dh = $3
		 RETURNING id`,
		sub.Endpoint, sub.Auth, sub.P256dh,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save subscription: %w", err)
	}
	return id, nil
}

// ListSubscriptions retorna todas as inscrições de notificação ativas.
func (r *PostgresRepository) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, endpoint, auth, p256dh FROM push_subscriptions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.Auth, &s.P256dh); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return subs, nil
}

// DeleteSubscription remove a inscrição do endpoint informado.
func (r *PostgresRepository) DeleteSubscription(ctx context.Context, endpoint string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint,
	); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// SalesSummary agrega as vendas pagas do período: receita, descontos,
// custo dos produtos, custo das taxas e lucro.
func (r *PostgresRepository) SalesSummary(ctx context.Context, from, to time.Time) (*model.SalesSummary, error) {
	var s model.SalesSummary

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(total_cents), 0),
		        COALESCE(SUM(discount_cents), 0),
		        COALESCE(SUM(surcharge_cost_cents), 0)
		 FROM orders
		 WHERE status = $1 AND created_at >= $2 AND created_at < $3`,
		string(model.OrderStatusPaid), from, to,
	).Scan(&s.Orders, &s.RevenueCents, &s.DiscountCents, &s.SurchargeCostCents)
	if err != nil {
		return nil, fmt.Errorf("sum orders: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(i.unit_cost_cents * i.quantity), 0)
		 FROM order_items i
		 JOIN orders o ON o.id = i.order_id
		 WHERE o.status = $1 AND o.created_at >= $2 AND o.created_at < $3`,
		string(model.OrderStatusPaid), from, to,
	).Scan(&s.ProductCostCents)
	if err != nil {
		return nil, fmt.Errorf("sum product cost: %w", err)
	}

	s.ProfitCents = s.RevenueCents - s.ProductCostCents - s.SurchargeCostCents

	return &s, nil
}
