// Package model contém as entidades de domínio da lanchonete.
package model

import "time"

// OrderStatus descreve o estágio de um pedido na cozinha.
type OrderStatus string

const (
	OrderStatusReceived     OrderStatus = "RECEBIDO"
	OrderStatusInProduction OrderStatus = "EM_PRODUCAO"
	OrderStatusPaid         OrderStatus = "PAGO"
)

// POSCustomerName é o nome de cliente gravado em pedidos lançados no balcão.
// Relatórios externos ainda filtram por esse literal; dentro do serviço a
// fonte autoritativa é o campo PlacedAtCounter.
const POSCustomerName = "PDV"

// Valid informa se o status é um dos três estágios conhecidos.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusInProduction, OrderStatusPaid:
		return true
	}
	return false
}

// CanTransition informa se a mudança de status é permitida.
// Reaplicar o status atual é idempotente; PAGO é terminal.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return from == OrderStatusReceived || from == OrderStatusInProduction
	}
	switch from {
	case OrderStatusReceived:
		return to == OrderStatusInProduction
	case OrderStatusInProduction:
		return to == OrderStatusPaid
	}
	return false
}

// Product representa um item do cardápio com estoque controlado.
// Nomes no formato "Pai: Variação" são agrupados no cardápio público.
type Product struct {
	ID         int64
	Name       string
	PriceCents int64
	CostCents  int64
	Stock      int
}

// OrderItem é uma linha de um pedido com preço e custo congelados na venda.
type OrderItem struct {
	ProductID      int64
	Name           string
	Quantity       int
	UnitPriceCents int64
	UnitCostCents  int64
}

// Order descreve um pedido e seus valores derivados.
type Order struct {
	ID                 int64
	CustomerName       string
	Items              []OrderItem
	SubtotalCents      int64
	DiscountCents      int64
	TotalCents         int64
	PaymentMethod      string
	SurchargeCostCents int64
	Status             OrderStatus
	PlacedAtCounter    bool
	CreatedAt          time.Time
}

// PushSubscription guarda o destino de notificação de um navegador inscrito.
type PushSubscription struct {
	ID       int64
	Endpoint string
	Auth     string
	P256dh   string
}

// SalesSummary agrega os números do painel de vendas em um período.
type SalesSummary struct {
	Orders             int
	RevenueCents       int64
	DiscountCents      int64
	ProductCostCents   int64
	SurchargeCostCents int64
	ProfitCents        int64
}
