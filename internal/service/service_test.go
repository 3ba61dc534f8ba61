package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/checkout"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/model"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/push"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/repository"
)

type statusUpdate struct {
	id        int64
	status    model.OrderStatus
	method    string
	surcharge int64
}

type stubRepo struct {
	products map[int64]model.Product

	createdOrder *model.Order
	createID     int64
	createErr    error

	getOrder    *model.Order
	getOrderErr error

	listOrders    []model.Order
	listOrdersErr error

	ordersAfter    []model.Order
	ordersAfterErr error

	updates   []statusUpdate
	updateErr error

	deleteOrderErr error

	rates    map[string]float64
	ratesErr error

	subs             []model.PushSubscription
	subsErr          error
	savedSub         *model.PushSubscription
	deletedEndpoints []string

	summary *model.SalesSummary
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) ListProducts(ctx context.Context) ([]model.Product, error) {
	products := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	return products, nil
}

func (s *stubRepo) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	out := make(map[int64]model.Product)
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	s.createdOrder = o
	return s.createID, s.createErr
}

func (s *stubRepo) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.getOrder, s.getOrderErr
}

func (s *stubRepo) ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	return s.listOrders, s.listOrdersErr
}

func (s *stubRepo) ListOrdersAfter(ctx context.Context, id int64) ([]model.Order, error) {
	return s.ordersAfter, s.ordersAfterErr
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, paymentMethod string, surchargeCents int64) error {
	s.updates = append(s.updates, statusUpdate{id: id, status: status, method: paymentMethod, surcharge: surchargeCents})
	return s.updateErr
}

func (s *stubRepo) DeleteOrderAndRestock(ctx context.Context, id int64) error {
	return s.deleteOrderErr
}

func (s *stubRepo) PaymentRates(ctx context.Context) (map[string]float64, error) {
	return s.rates, s.ratesErr
}

func (s *stubRepo) SaveSubscription(ctx context.Context, sub model.PushSubscription) (int64, error) {
	s.savedSub = &sub
	return 1, nil
}

func (s *stubRepo) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	return s.subs, s.subsErr
}

func (s *stubRepo) DeleteSubscription(ctx context.Context, endpoint string) error {
	s.deletedEndpoints = append(s.deletedEndpoints, endpoint)
	return nil
}

func (s *stubRepo) SalesSummary(ctx context.Context, from, to time.Time) (*model.SalesSummary, error) {
	return s.summary, nil
}

type stubSender struct {
	sent   []string
	errFor map[string]error
}

func (s *stubSender) Send(ctx context.Context, sub model.PushSubscription, n push.Notification) error {
	s.sent = append(s.sent, sub.Endpoint)
	if s.errFor != nil {
		return s.errFor[sub.Endpoint]
	}
	return nil
}

func testProducts() map[int64]model.Product {
	return map[int64]model.Product{
		1: {ID: 1, Name: "X-Burguer", PriceCents: 1500, CostCents: 600, Stock: 10},
		2: {ID: 2, Name: "Suco: Laranja", PriceCents: 700, CostCents: 200, Stock: 5},
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	repo := &stubRepo{products: testProducts(), createID: 1}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		Items: []OrderItemInput{{ProductID: 1, Quantity: 1}},
	})
	if !errors.Is(err, ErrCustomerNameRequired) {
		t.Fatalf("expected ErrCustomerNameRequired, got %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "Maria",
		Items:        []OrderItemInput{{ProductID: 1, Quantity: 0}},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "Maria",
		Items:        []OrderItemInput{{ProductID: 99, Quantity: 1}},
	})
	if !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "Maria",
		Items:        []OrderItemInput{{ProductID: 2, Quantity: 6}},
	})
	if !errors.Is(err, checkout.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestCreateOrder_ComputesTotalsServerSide(t *testing.T) {
	repo := &stubRepo{products: testProducts(), createID: 7}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName:  "Maria",
		Items:         []OrderItemInput{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
		DiscountCents: 700,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if res.OrderID != 7 {
		t.Fatalf("order id = %d, want 7", res.OrderID)
	}

	o := repo.createdOrder
	if o.SubtotalCents != 3700 {
		t.Fatalf("subtotal = %d, want 3700", o.SubtotalCents)
	}
	if o.TotalCents != 3000 {
		t.Fatalf("total = %d, want 3000", o.TotalCents)
	}
	if o.Status != model.OrderStatusReceived {
		t.Fatalf("status = %s, want RECEBIDO", o.Status)
	}
	if o.PlacedAtCounter {
		t.Fatalf("public order must not be marked as counter order")
	}
}

func TestCreateOrder_DiscountClampsToZero(t *testing.T) {
	repo := &stubRepo{products: testProducts(), createID: 1}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName:  "Maria",
		Items:         []OrderItemInput{{ProductID: 2, Quantity: 1}},
		DiscountCents: 5000,
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if repo.createdOrder.TotalCents != 0 {
		t.Fatalf("total = %d, want 0", repo.createdOrder.TotalCents)
	}
}

func TestCreateOrder_CounterFlow(t *testing.T) {
	repo := &stubRepo{
		products: testProducts(),
		createID: 3,
		rates:    map[string]float64{checkout.MethodCardCredit: 3.5},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	// Sem pagamento resolvido não há venda de balcão.
	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		AtCounter: true,
		Items:     []OrderItemInput{{ProductID: 1, Quantity: 1}},
	})
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}

	// "Cartão" sem bandeira é falha de validação, não um padrão.
	_, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		AtCounter: true,
		Items:     []OrderItemInput{{ProductID: 1, Quantity: 1}},
		Payment:   &PaymentInput{Method: checkout.CardBase},
	})
	if !errors.Is(err, checkout.ErrCardKindRequired) {
		t.Fatalf("expected ErrCardKindRequired, got %v", err)
	}

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		AtCounter: true,
		Items:     []OrderItemInput{{ProductID: 1, Quantity: 2}},
		Payment:   &PaymentInput{Method: checkout.CardBase, CardKind: "Crédito"},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if res.OrderID != 3 {
		t.Fatalf("order id = %d, want 3", res.OrderID)
	}

	o := repo.createdOrder
	if o.CustomerName != model.POSCustomerName {
		t.Fatalf("customer name = %q, want %q", o.CustomerName, model.POSCustomerName)
	}
	if !o.PlacedAtCounter {
		t.Fatalf("counter order must carry PlacedAtCounter")
	}
	// Pedido de balcão também passa pela cozinha: nasce RECEBIDO com o
	// pagamento já resolvido e gravado.
	if o.Status != model.OrderStatusReceived {
		t.Fatalf("counter order status = %s, want RECEBIDO", o.Status)
	}
	if o.PaymentMethod != checkout.MethodCardCredit {
		t.Fatalf("method = %q, want %q", o.PaymentMethod, checkout.MethodCardCredit)
	}
	// 3000 × 3,5% = 105 centavos.
	if o.SurchargeCostCents != 105 {
		t.Fatalf("surcharge = %d, want 105", o.SurchargeCostCents)
	}
}

func TestCreateOrder_CashChange(t *testing.T) {
	repo := &stubRepo{products: testProducts(), createID: 4}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		AtCounter: true,
		Items:     []OrderItemInput{{ProductID: 1, Quantity: 1}},
		Payment:   &PaymentInput{Method: checkout.MethodCash, AmountReceivedCents: 1000},
	})
	if !errors.Is(err, checkout.ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		AtCounter: true,
		Items:     []OrderItemInput{{ProductID: 1, Quantity: 1}},
		Payment:   &PaymentInput{Method: checkout.MethodCash, AmountReceivedCents: 2000},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if res.ChangeDueCents != 500 {
		t.Fatalf("change = %d, want 500", res.ChangeDueCents)
	}

	res, err = svc.CreateOrder(context.Background(), CreateOrderInput{
		AtCounter: true,
		Items:     []OrderItemInput{{ProductID: 1, Quantity: 1}},
		Payment:   &PaymentInput{Method: checkout.MethodCash, AmountReceivedCents: 1500},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if res.ChangeDueCents != 0 {
		t.Fatalf("exact payment change = %d, want 0", res.ChangeDueCents)
	}
}

func TestAdvanceOrder_KitchenFlow(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{ID: 5, CustomerName: "Maria", TotalCents: 3000, Status: model.OrderStatusReceived},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	order, err := svc.AdvanceOrder(context.Background(), 5, model.OrderStatusInProduction, nil)
	if err != nil {
		t.Fatalf("AdvanceOrder error: %v", err)
	}
	if order.Status != model.OrderStatusInProduction {
		t.Fatalf("status = %s, want EM_PRODUCAO", order.Status)
	}
	if len(repo.updates) != 1 || repo.updates[0].status != model.OrderStatusInProduction {
		t.Fatalf("unexpected updates: %+v", repo.updates)
	}
}

func TestAdvanceOrder_IdempotentReapply(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{ID: 5, Status: model.OrderStatusInProduction},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	order, err := svc.AdvanceOrder(context.Background(), 5, model.OrderStatusInProduction, nil)
	if err != nil {
		t.Fatalf("AdvanceOrder error: %v", err)
	}
	if order.Status != model.OrderStatusInProduction {
		t.Fatalf("status = %s, want EM_PRODUCAO", order.Status)
	}
	if len(repo.updates) != 0 {
		t.Fatalf("idempotent reapply must not touch the store, got %+v", repo.updates)
	}
}

func TestAdvanceOrder_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   model.OrderStatus
		target model.OrderStatus
	}{
		{name: "received straight to paid", from: model.OrderStatusReceived, target: model.OrderStatusPaid},
		{name: "production back to received", from: model.OrderStatusInProduction, target: model.OrderStatusReceived},
		{name: "paid back to production", from: model.OrderStatusPaid, target: model.OrderStatusInProduction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{getOrder: &model.Order{ID: 1, Status: tt.from}}
			svc := NewService(repo, nil, Merchant{}, 0, nil)

			_, err := svc.AdvanceOrder(context.Background(), 1, tt.target, nil)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestAdvanceOrder_PaidRequiresPayment(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{ID: 5, CustomerName: "Maria", TotalCents: 3000, Status: model.OrderStatusInProduction},
		rates:    map[string]float64{checkout.MethodPix: 1},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.AdvanceOrder(context.Background(), 5, model.OrderStatusPaid, nil)
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}

	order, err := svc.AdvanceOrder(context.Background(), 5, model.OrderStatusPaid, &PaymentInput{Method: checkout.MethodPix})
	if err != nil {
		t.Fatalf("AdvanceOrder error: %v", err)
	}
	if order.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAGO", order.Status)
	}
	if order.PaymentMethod != checkout.MethodPix {
		t.Fatalf("method = %q, want Pix", order.PaymentMethod)
	}
	// 3000 × 1% = 30 centavos.
	if order.SurchargeCostCents != 30 {
		t.Fatalf("surcharge = %d, want 30", order.SurchargeCostCents)
	}
}

func TestAdvanceOrder_CounterOrderKitchenFlow(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{
			ID:              6,
			CustomerName:    model.POSCustomerName,
			TotalCents:      1500,
			PaymentMethod:   checkout.MethodCash,
			Status:          model.OrderStatusReceived,
			PlacedAtCounter: true,
		},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	order, err := svc.AdvanceOrder(context.Background(), 6, model.OrderStatusInProduction, nil)
	if err != nil {
		t.Fatalf("AdvanceOrder error: %v", err)
	}
	if order.Status != model.OrderStatusInProduction {
		t.Fatalf("status = %s, want EM_PRODUCAO", order.Status)
	}
	if order.PaymentMethod != checkout.MethodCash {
		t.Fatalf("method = %q, must survive the kitchen transition", order.PaymentMethod)
	}
}

func TestAdvanceOrder_CounterOrderSkipsPaymentPrompt(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{
			ID:              6,
			CustomerName:    model.POSCustomerName,
			TotalCents:      1500,
			Status:          model.OrderStatusInProduction,
			PlacedAtCounter: true,
		},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	order, err := svc.AdvanceOrder(context.Background(), 6, model.OrderStatusPaid, nil)
	if err != nil {
		t.Fatalf("AdvanceOrder error: %v", err)
	}
	if order.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAGO", order.Status)
	}
	if len(repo.updates) != 1 || repo.updates[0].method != "" {
		t.Fatalf("counter order must transition without payment, got %+v", repo.updates)
	}
}

func TestAdvanceOrder_CashAtKitchen(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{ID: 5, CustomerName: "Maria", TotalCents: 3000, Status: model.OrderStatusInProduction},
	}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.AdvanceOrder(context.Background(), 5, model.OrderStatusPaid,
		&PaymentInput{Method: checkout.MethodCash, AmountReceivedCents: 2000})
	if !errors.Is(err, checkout.ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}

	order, err := svc.AdvanceOrder(context.Background(), 5, model.OrderStatusPaid,
		&PaymentInput{Method: checkout.MethodCash, AmountReceivedCents: 3000})
	if err != nil {
		t.Fatalf("AdvanceOrder error: %v", err)
	}
	if order.Status != model.OrderStatusPaid {
		t.Fatalf("status = %s, want PAGO", order.Status)
	}
}

func TestAdvanceOrder_NotFound(t *testing.T) {
	repo := &stubRepo{getOrderErr: repository.ErrOrderNotFound}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.AdvanceOrder(context.Background(), 99, model.OrderStatusInProduction, nil)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestPaymentRates_DefaultsWhenUnavailable(t *testing.T) {
	repo := &stubRepo{ratesErr: errors.New("table missing")}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	rates := svc.PaymentRates(context.Background())
	for _, method := range []string{checkout.MethodCash, checkout.MethodPix, checkout.MethodCardDebit, checkout.MethodCardCredit} {
		if rates[method] != 0 {
			t.Fatalf("rate for %s = %v, want 0", method, rates[method])
		}
	}
}

func TestPixPayload_UsesOrderTotal(t *testing.T) {
	repo := &stubRepo{
		getOrder: &model.Order{ID: 5, TotalCents: 1050, Status: model.OrderStatusInProduction},
	}
	svc := NewService(repo, nil, Merchant{PixKey: "tio@flavio.com", Name: "TIO FLAVIO", City: "RECIFE"}, 0, nil)

	payload, err := svc.PixPayload(context.Background(), 5)
	if err != nil {
		t.Fatalf("PixPayload error: %v", err)
	}
	if !strings.Contains(payload, "540510.50") {
		t.Fatalf("payload %q must contain amount field 540510.50", payload)
	}
	if !strings.Contains(payload, "5910TIO FLAVIO") {
		t.Fatalf("payload %q must carry merchant name", payload)
	}
	if !strings.Contains(payload, "62110507PEDIDO5") {
		t.Fatalf("payload %q must carry the order-derived transaction id", payload)
	}
}

func TestNotifyNewOrder_PrunesGoneSubscriptions(t *testing.T) {
	repo := &stubRepo{
		subs: []model.PushSubscription{
			{ID: 1, Endpoint: "https://push/alive"},
			{ID: 2, Endpoint: "https://push/gone"},
			{ID: 3, Endpoint: "https://push/flaky"},
		},
	}
	sender := &stubSender{
		errFor: map[string]error{
			"https://push/gone":  push.ErrSubscriptionGone,
			"https://push/flaky": errors.New("timeout"),
		},
	}
	svc := NewService(repo, sender, Merchant{}, 0, nil)

	err := svc.NotifyNewOrder(context.Background(), model.Order{ID: 9, CustomerName: "Maria"})
	if err != nil {
		t.Fatalf("NotifyNewOrder error: %v", err)
	}

	if len(sender.sent) != 3 {
		t.Fatalf("sent to %d subscriptions, want 3", len(sender.sent))
	}
	if len(repo.deletedEndpoints) != 1 || repo.deletedEndpoints[0] != "https://push/gone" {
		t.Fatalf("pruned endpoints = %v, want only the gone one", repo.deletedEndpoints)
	}
}

func TestNotifyNewOrder_LogsDeliveryFailures(t *testing.T) {
	repo := &stubRepo{
		subs: []model.PushSubscription{
			{ID: 1, Endpoint: "https://push/alive"},
			{ID: 2, Endpoint: "https://push/flaky"},
		},
	}
	sender := &stubSender{
		errFor: map[string]error{
			"https://push/flaky": errors.New("timeout"),
		},
	}

	core, logs := observer.New(zapcore.ErrorLevel)
	svc := NewService(repo, sender, Merchant{}, 0, zap.New(core))

	if err := svc.NotifyNewOrder(context.Background(), model.Order{ID: 9, CustomerName: "Maria"}); err != nil {
		t.Fatalf("NotifyNewOrder error: %v", err)
	}

	entries := logs.FilterMessage("push delivery failed").All()
	if len(entries) != 1 {
		t.Fatalf("delivery failure log entries = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["endpoint"] != "https://push/flaky" {
		t.Fatalf("logged endpoint = %v, want the flaky one", entries[0].ContextMap()["endpoint"])
	}
}

func TestStartOrderWatch_LogsPollFailures(t *testing.T) {
	repo := &stubRepo{ordersAfterErr: errors.New("connection refused")}

	core, logs := observer.New(zapcore.ErrorLevel)
	svc := NewService(repo, &stubSender{}, Merchant{}, 5*time.Millisecond, zap.New(core))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	svc.StartOrderWatch(ctx)
	<-ctx.Done()

	if logs.FilterMessage("order watch poll failed").Len() == 0 {
		t.Fatalf("poll failure must be logged")
	}
}

func TestListOrders_RejectsUnknownStatus(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, Merchant{}, 0, nil)

	_, err := svc.ListOrders(context.Background(), []model.OrderStatus{"CANCELADO"})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestStartOrderWatch_NoPusher(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartOrderWatch(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartOrderWatch did not return without pusher")
	}
}
