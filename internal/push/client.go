// Package push entrega notificações de novos pedidos aos navegadores
// inscritos. A entrega é melhor esforço: sem retentativas, inscrições
// mortas são sinalizadas ao chamador para poda.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/model"
)

// ErrSubscriptionGone indica que o serviço de push respondeu 404/410 e a
// inscrição deve ser removida.
var ErrSubscriptionGone = errors.New("subscription gone")

// Client encapsula o envio HTTP para os endpoints de inscrição.
type Client struct {
	httpClient *http.Client
}

// Notification é o corpo entregue ao navegador inscrito.
type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	OrderID int64  `json:"orderId"`
}

// NewClient cria o cliente de notificações com o timeout padrão.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send entrega a notificação ao endpoint da inscrição. 404 e 410 viram
// ErrSubscriptionGone; demais respostas fora de 2xx são erro de entrega.
func (c *Client) Send(ctx context.Context, sub model.PushSubscription, n Notification) error {
	if c == nil || sub.Endpoint == "" {
		return fmt.Errorf("push client not configured")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", "60")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrSubscriptionGone
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
