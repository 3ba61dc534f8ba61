// Package pix monta o payload "copia e cola" do BR Code (Pix) no formato
// EMV de QR apresentado pelo lojista: sequência de campos ID + tamanho +
// valor encerrada por um CRC-16/CCITT-FALSE em hexadecimal.
package pix

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// gui identifica o arranjo Pix dentro do campo 26 (Merchant Account Information).
	gui = "br.gov.bcb.pix"

	maxMerchantName = 25
	maxMerchantCity = 15
)

// DefaultTxID é o identificador de transação usado quando o lojista não
// concilia transações individualmente.
const DefaultTxID = "***"

// Charge descreve uma cobrança Pix a ser codificada. O valor é imutável
// após a montagem; Encode nunca falha, entradas inválidas são saneadas.
type Charge struct {
	Key          string
	MerchantName string
	MerchantCity string
	Amount       float64
	TxID         string
}

// Encode produz o payload completo do BR Code, pronto para virar QR ou
// ser copiado. O campo de valor (54) é omitido quando o montante é zero.
func (c Charge) Encode() string {
	key := sanitizeKey(c.Key)
	name := truncate(sanitizeText(c.MerchantName), maxMerchantName)
	city := truncate(sanitizeText(c.MerchantCity), maxMerchantCity)

	txid := c.TxID
	if txid == "" {
		txid = DefaultTxID
	}

	amount := formatAmount(c.Amount)

	account := field("00", gui) + field("01", key)

	var b strings.Builder
	b.WriteString(field("00", "01"))
	b.WriteString(field("26", account))
	b.WriteString(field("52", "0000"))
	b.WriteString(field("53", "986"))
	if amount != "0.00" {
		b.WriteString(field("54", amount))
	}
	b.WriteString(field("58", "BR"))
	b.WriteString(field("59", name))
	b.WriteString(field("60", city))
	b.WriteString(field("62", field("05", txid)))

	// Prefixo do campo de CRC: o valor são sempre 4 dígitos hexadecimais.
	b.WriteString("6304")

	payload := b.String()
	return payload + fmt.Sprintf("%04X", Checksum(payload))
}

// Checksum calcula o CRC-16/CCITT-FALSE do texto: polinômio 0x1021,
// registrador inicial 0xFFFF, sem reflexão e sem XOR final.
func Checksum(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// field serializa um campo TLV: id + tamanho decimal em 2 dígitos + valor.
func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// sanitizeKey remove da chave tudo fora do alfabeto aceito pelos arranjos
// de chave Pix (letras, dígitos, @ . - / + e espaço).
func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '@', r == '.', r == '-', r == '/', r == '+', r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeText normaliza nome e cidade: decompõe acentos, descarta as
// marcas combinantes e converte para maiúsculas.
func sanitizeText(s string) string {
	s = strings.TrimSpace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	return strings.ToUpper(plain)
}

// truncate limita o texto a max runas, nunca cortando no meio de uma
// runa multibyte que tenha sobrevivido à normalização (Ł, Ø, ß).
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// formatAmount coage o montante para um valor não negativo e o formata com
// exatamente duas casas decimais e ponto como separador.
func formatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		v = 0
	}
	cents := int64(math.Round(v * 100))
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
