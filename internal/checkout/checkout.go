// Package checkout concentra a aritmética de carrinho, desconto, troco e
// taxa de pagamento, além da resolução do método de pagamento.
package checkout

import (
	"errors"
	"math"
	"strings"
)

// Métodos de pagamento aceitos no balcão e na cozinha.
const (
	MethodCash       = "Dinheiro"
	MethodPix        = "Pix"
	MethodCardDebit  = "Cartão - Débito"
	MethodCardCredit = "Cartão - Crédito"
)

// CardBase é a seleção "Cartão" ainda sem a bandeira resolvida; não é um
// método final.
const CardBase = "Cartão"

var (
	// ErrUnknownMethod indica um método de pagamento fora da lista aceita.
	ErrUnknownMethod = errors.New("unknown payment method")
	// ErrCardKindRequired indica "Cartão" sem débito/crédito resolvido.
	ErrCardKindRequired = errors.New("card kind must be resolved")
	// ErrInsufficientCash indica valor recebido menor que o total.
	ErrInsufficientCash = errors.New("amount received is less than total")
	// ErrOutOfStock indica tentativa de adicionar além do estoque conhecido.
	ErrOutOfStock = errors.New("quantity exceeds available stock")
)

// ResolveMethod valida o método escolhido. Para "Cartão" a bandeira
// (Débito/Crédito) é obrigatória; a ausência é erro de validação, nunca um
// padrão assumido.
func ResolveMethod(method, cardKind string) (string, error) {
	switch method {
	case MethodCash, MethodPix, MethodCardDebit, MethodCardCredit:
		return method, nil
	case CardBase:
		switch cardKind {
		case "Débito":
			return MethodCardDebit, nil
		case "Crédito":
			return MethodCardCredit, nil
		case "":
			return "", ErrCardKindRequired
		default:
			return "", ErrCardKindRequired
		}
	case "":
		return "", ErrUnknownMethod
	default:
		return "", ErrUnknownMethod
	}
}

// SurchargeCents calcula o custo da taxa do método: total × percentual,
// arredondado para o centavo mais próximo.
func SurchargeCents(totalCents int64, percent float64) int64 {
	if percent <= 0 || totalCents <= 0 {
		return 0
	}
	return int64(math.Round(float64(totalCents) * percent / 100))
}

// ChangeDue calcula o troco de um pagamento em dinheiro. Recebido menor
// que o total bloqueia a confirmação.
func ChangeDue(receivedCents, totalCents int64) (int64, error) {
	if receivedCents < totalCents {
		return 0, ErrInsufficientCash
	}
	return receivedCents - totalCents, nil
}

// Line é uma linha de carrinho local ao cliente; nunca existe com
// quantidade não positiva.
type Line struct {
	ProductID      int64
	Name           string
	UnitPriceCents int64
	UnitCostCents  int64
	Quantity       int
	StockAvailable int
}

// Cart acumula linhas antes do envio do pedido. O estoque usado nas
// validações é o conhecido na última leitura de produtos; o servidor
// revalida na criação do pedido.
type Cart struct {
	lines []Line
}

// Add soma quantidade à linha do produto, criando-a se necessário.
// Ultrapassar o estoque conhecido é rejeitado sem alterar o carrinho.
func (c *Cart) Add(l Line, qty int) error {
	if qty <= 0 {
		return nil
	}
	for i := range c.lines {
		if c.lines[i].ProductID == l.ProductID {
			if c.lines[i].Quantity+qty > c.lines[i].StockAvailable {
				return ErrOutOfStock
			}
			c.lines[i].Quantity += qty
			return nil
		}
	}
	if qty > l.StockAvailable {
		return ErrOutOfStock
	}
	l.Quantity = qty
	c.lines = append(c.lines, l)
	return nil
}

// Remove subtrai quantidade da linha do produto; ao chegar a zero a linha
// é descartada.
func (c *Cart) Remove(productID int64, qty int) {
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		c.lines[i].Quantity -= qty
		if c.lines[i].Quantity <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		}
		return
	}
}

// Lines devolve uma cópia das linhas atuais.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// SubtotalCents soma preço × quantidade de todas as linhas.
func (c *Cart) SubtotalCents() int64 {
	var sum int64
	for _, l := range c.lines {
		sum += l.UnitPriceCents * int64(l.Quantity)
	}
	return sum
}

// TotalCents aplica o desconto ao subtotal. Desconto negativo é tratado
// como zero e o total nunca fica negativo.
func (c *Cart) TotalCents(discountCents int64) int64 {
	return Total(c.SubtotalCents(), discountCents)
}

// Total aplica o desconto a um subtotal já conhecido, com o mesmo clamp.
func Total(subtotalCents, discountCents int64) int64 {
	if discountCents < 0 {
		discountCents = 0
	}
	total := subtotalCents - discountCents
	if total < 0 {
		return 0
	}
	return total
}

// GroupKey extrai a chave de agrupamento de um nome de produto: o trecho
// antes do primeiro ":". Produtos "Pai: Variação" compartilham a chave.
func GroupKey(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	return strings.TrimSpace(name)
}

// VariantName extrai o trecho após o primeiro ":", vazio quando o produto
// não tem variação.
func VariantName(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		return strings.TrimSpace(name[i+1:])
	}
	return ""
}
