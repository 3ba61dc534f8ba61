// Package service implementa a lógica de negócio da lanchonete: ciclo de
// vida dos pedidos, resolução de pagamento, payload Pix e notificações.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/checkout"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/model"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/pix"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/push"
)

var (
	// ErrEmptyCart indica tentativa de criar pedido sem itens.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCustomerNameRequired indica pedido público sem nome de cliente.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// ErrInvalidQuantity indica item com quantidade não positiva.
	ErrInvalidQuantity = errors.New("item quantity must be positive")
	// ErrUnknownProduct indica item referenciando produto inexistente.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrInvalidStatus indica um status fora dos três estágios conhecidos.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition indica mudança de status fora da máquina
	// RECEBIDO → EM_PRODUCAO → PAGO.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPaymentRequired indica transição para PAGO sem método resolvido.
	ErrPaymentRequired = errors.New("payment method is required")
)

// Repository descreve o contrato de acesso a dados usado pelo serviço.
type Repository interface {
	Close() error
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
	CreateOrder(ctx context.Context, o *model.Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error)
	ListOrdersAfter(ctx context.Context, id int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, paymentMethod string, surchargeCents int64) error
	DeleteOrderAndRestock(ctx context.Context, id int64) error
	PaymentRates(ctx context.Context) (map[string]float64, error)
	SaveSubscription(ctx context.Context, sub model.PushSubscription) (int64, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SalesSummary(ctx context.Context, from, to time.Time) (*model.SalesSummary, error)
}

// Sender descreve o envio de uma notificação para uma inscrição.
type Sender interface {
	Send(ctx context.Context, sub model.PushSubscription, n push.Notification) error
}

// Merchant agrupa os dados do recebedor usados no payload Pix.
type Merchant struct {
	PixKey string
	Name   string
	City   string
}

// Service contém a lógica de negócio da lanchonete.
type Service struct {
	repo        Repository
	pusher      Sender
	merchant    Merchant
	watchPeriod time.Duration
	logger      *zap.Logger
}

// NewService cria o serviço com o repositório, o cliente de notificações e
// os dados do recebedor Pix.
func NewService(repo Repository, pusher Sender, merchant Merchant, watchPeriod time.Duration, logger *zap.Logger) *Service {
	if watchPeriod <= 0 {
		watchPeriod = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		pusher:      pusher,
		merchant:    merchant,
		watchPeriod: watchPeriod,
		logger:      logger,
	}
}

// Close fecha os recursos do serviço.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Menu retorna o cardápio agrupado por produto com o menor preço entre as
// variações como preço de exibição.
func (s *Service) Menu(ctx context.Context) ([]checkout.ProductGroup, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return checkout.GroupProducts(products), nil
}

// OrderItemInput é um item de pedido recebido do cliente: só id e
// quantidade, preços vêm sempre do banco.
type OrderItemInput struct {
	ProductID int64
	Quantity  int
}

// PaymentInput carrega a escolha de pagamento a resolver.
type PaymentInput struct {
	Method              string
	CardKind            string
	AmountReceivedCents int64
}

// CreateOrderInput agrupa os dados de criação de um pedido.
type CreateOrderInput struct {
	CustomerName  string
	Items         []OrderItemInput
	DiscountCents int64
	AtCounter     bool
	Payment       *PaymentInput
}

// CreateOrderResult devolve o id criado e o troco calculado no balcão.
type CreateOrderResult struct {
	OrderID        int64
	ChangeDueCents int64
}

// CreateOrder valida o carrinho, recalcula os totais no servidor e grava o
// pedido. Todo pedido nasce RECEBIDO e passa pela cozinha; no balcão o
// método de pagamento é resolvido e gravado já na criação, de modo que a
// transição para PAGO depois não pede pagamento de novo. Pedidos do site
// são notificados pelo vigia de fundo.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}

	customerName := strings.TrimSpace(in.CustomerName)
	if in.AtCounter {
		customerName = model.POSCustomerName
	} else if customerName == "" {
		return nil, ErrCustomerNameRequired
	}

	ids := make([]int64, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var cart checkout.Cart
	for _, item := range in.Items {
		p, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, item.ProductID)
		}
		if err := cart.Add(checkout.Line{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			UnitCostCents:  p.CostCents,
			StockAvailable: p.Stock,
		}, item.Quantity); err != nil {
			return nil, err
		}
	}

	subtotal := cart.SubtotalCents()
	discount := in.DiscountCents
	if discount < 0 {
		discount = 0
	}
	total := checkout.Total(subtotal, discount)

	order := &model.Order{
		CustomerName:    customerName,
		SubtotalCents:   subtotal,
		DiscountCents:   discount,
		TotalCents:      total,
		Status:          model.OrderStatusReceived,
		PlacedAtCounter: in.AtCounter,
	}

	for _, l := range cart.Lines() {
		order.Items = append(order.Items, model.OrderItem{
			ProductID:      l.ProductID,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			UnitCostCents:  l.UnitCostCents,
		})
	}

	var changeDue int64
	if in.Payment != nil {
		method, err := checkout.ResolveMethod(in.Payment.Method, in.Payment.CardKind)
		if err != nil {
			return nil, err
		}
		order.PaymentMethod = method
		order.SurchargeCostCents = checkout.SurchargeCents(total, s.rateFor(ctx, method))

		if in.AtCounter && method == checkout.MethodCash {
			changeDue, err = checkout.ChangeDue(in.Payment.AmountReceivedCents, total)
			if err != nil {
				return nil, err
			}
		}
	}

	if in.AtCounter && order.PaymentMethod == "" {
		// Venda de balcão recebe na hora; sem método resolvido não há venda.
		return nil, ErrPaymentRequired
	}

	id, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	order.ID = id

	return &CreateOrderResult{OrderID: id, ChangeDueCents: changeDue}, nil
}

// ListOrders retorna os pedidos nos status pedidos; sem filtro, todos.
func (s *Service) ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	if len(statuses) == 0 {
		statuses = []model.OrderStatus{
			model.OrderStatusReceived,
			model.OrderStatusInProduction,
			model.OrderStatusPaid,
		}
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, st)
		}
	}
	return s.repo.ListOrders(ctx, statuses)
}

// AdvanceOrder move o pedido pela máquina de estados. Reaplicar o status
// atual é idempotente. EM_PRODUCAO → PAGO exige método de pagamento
// resolvido, exceto para pedidos de balcão, cujo pagamento já foi
// resolvido na criação.
func (s *Service) AdvanceOrder(ctx context.Context, id int64, target model.OrderStatus, payment *PaymentInput) (*model.Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, target)
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if order.Status == target {
		// Tique de polling e ação humana podem disputar o mesmo clique.
		return order, nil
	}

	if !model.CanTransition(order.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}

	if target != model.OrderStatusPaid {
		if err := s.repo.UpdateOrderStatus(ctx, id, target, "", 0); err != nil {
			return nil, err
		}
		order.Status = target
		return order, nil
	}

	if order.PlacedAtCounter || order.CustomerName == model.POSCustomerName {
		// Pagamento do balcão já foi resolvido na criação: a transição é
		// só atualização de status, sem tocar no método gravado.
		if err := s.repo.UpdateOrderStatus(ctx, id, target, "", 0); err != nil {
			return nil, err
		}
		order.Status = target
		return order, nil
	}

	method := order.PaymentMethod
	if payment != nil {
		method, err = checkout.ResolveMethod(payment.Method, payment.CardKind)
		if err != nil {
			return nil, err
		}
	}
	if method == "" {
		return nil, ErrPaymentRequired
	}

	if method == checkout.MethodCash {
		if payment == nil {
			return nil, ErrPaymentRequired
		}
		if _, err := checkout.ChangeDue(payment.AmountReceivedCents, order.TotalCents); err != nil {
			return nil, err
		}
	}

	surcharge := checkout.SurchargeCents(order.TotalCents, s.rateFor(ctx, method))

	if err := s.repo.UpdateOrderStatus(ctx, id, target, method, surcharge); err != nil {
		return nil, err
	}

	order.Status = target
	order.PaymentMethod = method
	order.SurchargeCostCents = surcharge
	return order, nil
}

// DeleteOrder remove o pedido devolvendo os itens ao estoque. Ação
// administrativa destrutiva, não faz parte do ciclo de vida.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	return s.repo.DeleteOrderAndRestock(ctx, id)
}

// PixPayload monta o payload "copia e cola" para o total do pedido.
func (s *Service) PixPayload(ctx context.Context, orderID int64) (string, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	return pix.Charge{
		Key:          s.merchant.PixKey,
		MerchantName: s.merchant.Name,
		MerchantCity: s.merchant.City,
		Amount:       float64(order.TotalCents) / 100,
		TxID:         fmt.Sprintf("PEDIDO%d", order.ID),
	}.Encode(), nil
}

// PaymentRates retorna o percentual de taxa por método. Quando a tabela
// está indisponível todos os métodos valem zero, para nunca travar um
// fechamento de venda.
func (s *Service) PaymentRates(ctx context.Context) map[string]float64 {
	defaults := map[string]float64{
		checkout.MethodCash:       0,
		checkout.MethodPix:        0,
		checkout.MethodCardDebit:  0,
		checkout.MethodCardCredit: 0,
	}

	rates, err := s.repo.PaymentRates(ctx)
	if err != nil {
		return defaults
	}

	for method, percent := range rates {
		defaults[method] = percent
	}
	return defaults
}

func (s *Service) rateFor(ctx context.Context, method string) float64 {
	return s.PaymentRates(ctx)[method]
}

// Report retorna o resumo de vendas pagas do período.
func (s *Service) Report(ctx context.Context, from, to time.Time) (*model.SalesSummary, error) {
	return s.repo.SalesSummary(ctx, from, to)
}

// Subscribe registra uma inscrição de notificação de novos pedidos.
func (s *Service) Subscribe(ctx context.Context, sub model.PushSubscription) (int64, error) {
	if strings.TrimSpace(sub.Endpoint) == "" {
		return 0, errors.New("subscription endpoint is required")
	}
	return s.repo.SaveSubscription(ctx, sub)
}

// Unsubscribe remove a inscrição do endpoint informado.
func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	return s.repo.DeleteSubscription(ctx, endpoint)
}

// NotifyNewOrder envia a notificação de um pedido a todas as inscrições,
// removendo as que o serviço de push declarou mortas. Falhas individuais
// de entrega não interrompem o restante do leque.
func (s *Service) NotifyNewOrder(ctx context.Context, order model.Order) error {
	if s.pusher == nil {
		return nil
	}

	subs, err := s.repo.ListSubscriptions(ctx)
	if err != nil {
		return err
	}

	n := push.Notification{
		Title:   "Novo pedido",
		Body:    fmt.Sprintf("Pedido nº %d de %s", order.ID, order.CustomerName),
		OrderID: order.ID,
	}

	for _, sub := range subs {
		err := s.pusher.Send(ctx, sub, n)
		switch {
		case errors.Is(err, push.ErrSubscriptionGone):
			s.logger.Info("pruning dead push subscription",
				zap.String("endpoint", sub.Endpoint))
			if err := s.repo.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				s.logger.Error("prune subscription failed",
					zap.String("endpoint", sub.Endpoint), zap.Error(err))
			}
		case err != nil:
			s.logger.Error("push delivery failed",
				zap.String("endpoint", sub.Endpoint),
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	return nil
}

// NotifyOrder busca o pedido e dispara o leque de notificações para ele.
func (s *Service) NotifyOrder(ctx context.Context, id int64) error {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return s.NotifyNewOrder(ctx, *order)
}

// StartOrderWatch dispara o processo de fundo que vigia pedidos novos e
// notifica as inscrições. O primeiro tique só estabelece a linha de base.
func (s *Service) StartOrderWatch(ctx context.Context) {
	if s.pusher == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(s.watchPeriod)
		defer ticker.Stop()

		var lastSeen int64
		primed := false

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				orders, err := s.repo.ListOrdersAfter(ctx, lastSeen)
				if err != nil {
					s.logger.Error("order watch poll failed", zap.Error(err))
					continue
				}
				for _, o := range orders {
					if o.ID > lastSeen {
						lastSeen = o.ID
					}
					if primed {
						if err := s.NotifyNewOrder(ctx, o); err != nil {
							s.logger.Error("order notification failed",
								zap.Int64("order_id", o.ID), zap.Error(err))
						}
					}
				}
				primed = true
			}
		}
	}()
}
