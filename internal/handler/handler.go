// Package handler contém os manipuladores HTTP da API da lanchonete.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/checkout"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/middleware"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/model"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/repository"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/service"
)

// Service define o contrato de negócio consumido pelos manipuladores HTTP.
type Service interface {
	Menu(ctx context.Context) ([]checkout.ProductGroup, error)
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*service.CreateOrderResult, error)
	ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error)
	AdvanceOrder(ctx context.Context, id int64, target model.OrderStatus, payment *service.PaymentInput) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	PixPayload(ctx context.Context, orderID int64) (string, error)
	PaymentRates(ctx context.Context) map[string]float64
	Report(ctx context.Context, from, to time.Time) (*model.SalesSummary, error)
	Subscribe(ctx context.Context, sub model.PushSubscription) (int64, error)
	Unsubscribe(ctx context.Context, endpoint string) error
	NotifyOrder(ctx context.Context, id int64) error
}

// Handler implementa os manipuladores HTTP da API da lanchonete.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	staffPassword  string
}

// NewHandler cria um novo conjunto de manipuladores HTTP.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, staffPassword string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		staffPassword:  staffPassword,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login autentica a equipe e emite o cookie de sessão.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if h.staffPassword == "" || req.Password != h.staffPassword {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetStaffCookie(w)
	w.WriteHeader(http.StatusOK)
}

type productResponse struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Variant string  `json:"variant,omitempty"`
	Price   float64 `json:"price"`
	Stock   int     `json:"stock"`
}

type menuGroupResponse struct {
	Name         string            `json:"name"`
	DisplayPrice float64           `json:"displayPrice"`
	Variants     []productResponse `json:"variants"`
}

// Menu retorna o cardápio agrupado por produto.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Menu(r.Context())
	if err != nil {
		h.logger.Error("menu error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]menuGroupResponse, 0, len(groups))
	for _, g := range groups {
		mg := menuGroupResponse{
			Name:         g.Name,
			DisplayPrice: float64(g.DisplayPriceCents) / 100,
		}
		for _, p := range g.Variants {
			mg.Variants = append(mg.Variants, productResponse{
				ID:      p.ID,
				Name:    p.Name,
				Variant: checkout.VariantName(p.Name),
				Price:   float64(p.PriceCents) / 100,
				Stock:   p.Stock,
			})
		}
		resp = append(resp, mg)
	}

	writeJSON(w, resp)
}

type paymentRequest struct {
	Method         string  `json:"method"`
	CardKind       string  `json:"cardKind"`
	AmountReceived float64 `json:"amountReceived"`
}

func (p *paymentRequest) toInput() *service.PaymentInput {
	if p == nil {
		return nil
	}
	return &service.PaymentInput{
		Method:              p.Method,
		CardKind:            p.CardKind,
		AmountReceivedCents: toCents(p.AmountReceived),
	}
}

// toCents converte reais em centavos arredondando para o centavo mais
// próximo. Truncar rejeitaria pagamentos exatos: 4.35 em float64 é um
// pouco menos que 435 centavos.
func toCents(reais float64) int64 {
	return int64(math.Round(reais * 100))
}

type createOrderRequest struct {
	CustomerName string `json:"customerName"`
	Items        []struct {
		ProductID int64 `json:"productId"`
		Quantity  int   `json:"quantity"`
	} `json:"items"`
	Discount  float64         `json:"discount"`
	AtCounter bool            `json:"atCounter"`
	Payment   *paymentRequest `json:"payment"`
}

type createOrderResponse struct {
	OrderID   int64   `json:"orderId"`
	ChangeDue float64 `json:"changeDue"`
}

// CreateOrder cria um pedido a partir do carrinho enviado.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := service.CreateOrderInput{
		CustomerName:  req.CustomerName,
		DiscountCents: toCents(req.Discount),
		AtCounter:     req.AtCounter,
		Payment:       req.Payment.toInput(),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, service.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	res, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "create order error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createOrderResponse{
		OrderID:   res.OrderID,
		ChangeDue: float64(res.ChangeDueCents) / 100,
	})
}

type orderItemResponse struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderResponse struct {
	ID              int64               `json:"id"`
	CustomerName    string              `json:"customerName"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        float64             `json:"subtotal"`
	Discount        float64             `json:"discount"`
	Total           float64             `json:"total"`
	PaymentMethod   string              `json:"paymentMethod,omitempty"`
	SurchargeCost   float64             `json:"surchargeCost"`
	Status          string              `json:"status"`
	PlacedAtCounter bool                `json:"placedAtCounter"`
	CreatedAt       string              `json:"createdAt"`
}

func toOrderResponse(o model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		CustomerName:    o.CustomerName,
		Subtotal:        float64(o.SubtotalCents) / 100,
		Discount:        float64(o.DiscountCents) / 100,
		Total:           float64(o.TotalCents) / 100,
		PaymentMethod:   o.PaymentMethod,
		SurchargeCost:   float64(o.SurchargeCostCents) / 100,
		Status:          string(o.Status),
		PlacedAtCounter: o.PlacedAtCounter,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: float64(it.UnitPriceCents) / 100,
		})
	}
	return resp
}

// ListOrders retorna os pedidos filtrados por status.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var statuses []model.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, model.OrderStatus(strings.TrimSpace(s)))
		}
	}

	orders, err := h.service.ListOrders(r.Context(), statuses)
	if err != nil {
		h.writeServiceError(w, err, "list orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	writeJSON(w, resp)
}

type advanceOrderRequest struct {
	Status  string          `json:"status"`
	Payment *paymentRequest `json:"payment"`
}

// AdvanceOrder move o pedido para o próximo estágio do ciclo de vida.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req advanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.AdvanceOrder(r.Context(), id, model.OrderStatus(req.Status), req.Payment.toInput())
	if err != nil {
		h.writeServiceError(w, err, "advance order error")
		return
	}

	writeJSON(w, toOrderResponse(*order))
}

// DeleteOrder remove o pedido devolvendo os itens ao estoque.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete order error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type pixResponse struct {
	CopiaECola string `json:"copiaECola"`
}

// PixPayload retorna o "copia e cola" Pix do total do pedido.
func (h *Handler) PixPayload(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payload, err := h.service.PixPayload(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "pix payload error")
		return
	}

	writeJSON(w, pixResponse{CopiaECola: payload})
}

// PaymentRates retorna os percentuais de taxa por método de pagamento.
func (h *Handler) PaymentRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.PaymentRates(r.Context()))
}

type summaryResponse struct {
	Orders        int     `json:"orders"`
	Revenue       float64 `json:"revenue"`
	Discount      float64 `json:"discount"`
	ProductCost   float64 `json:"productCost"`
	SurchargeCost float64 `json:"surchargeCost"`
	Profit        float64 `json:"profit"`
}

// Report retorna o resumo de vendas pagas do período pedido.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		// Limite superior exclusivo: inclui o dia inteiro pedido.
		to = parsed.AddDate(0, 0, 1)
	}

	summary, err := h.service.Report(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, err, "report error")
		return
	}

	writeJSON(w, summaryResponse{
		Orders:        summary.Orders,
		Revenue:       float64(summary.RevenueCents) / 100,
		Discount:      float64(summary.DiscountCents) / 100,
		ProductCost:   float64(summary.ProductCostCents) / 100,
		SurchargeCost: float64(summary.SurchargeCostCents) / 100,
		Profit:        float64(summary.ProfitCents) / 100,
	})
}

type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		Auth   string `json:"auth"`
		P256dh string `json:"p256dh"`
	} `json:"keys"`
}

// Subscribe registra uma inscrição de notificação de novos pedidos.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Endpoint == "" {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	_, err := h.service.Subscribe(r.Context(), model.PushSubscription{
		Endpoint: req.Endpoint,
		Auth:     req.Keys.Auth,
		P256dh:   req.Keys.P256dh,
	})
	if err != nil {
		h.writeServiceError(w, err, "subscribe error")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Unsubscribe remove a inscrição do endpoint informado.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		h.writeServiceError(w, err, "unsubscribe error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type notifyRequest struct {
	OrderID int64 `json:"orderId"`
}

// Notify dispara manualmente o leque de notificações para um pedido.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.NotifyOrder(r.Context(), req.OrderID); err != nil {
		h.writeServiceError(w, err, "notify error")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, checkout.ErrOutOfStock),
		errors.Is(err, service.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrCustomerNameRequired),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrUnknownProduct),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrPaymentRequired),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, checkout.ErrUnknownMethod),
		errors.Is(err, checkout.ErrCardKindRequired),
		errors.Is(err, checkout.ErrInsufficientCash):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error(logMsg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
