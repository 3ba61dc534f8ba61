// Package middleware contém os HTTP middleware do serviço da lanchonete.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const staffKey contextKey = "staff"

const (
	authCookieName = "staff_session"
	authCookieTTL  = 12 * time.Hour
)

// AuthMiddleware valida a sessão da equipe por cookie assinado com HMAC.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware cria o middleware de sessão com o segredo informado.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware verifica o cookie de sessão e marca a requisição como vinda
// da equipe.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !a.parseCookie(cookie.Value) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), staffKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetStaffCookie emite o cookie de sessão da equipe.
func (a *AuthMiddleware) SetStaffCookie(w http.ResponseWriter) {
	value := a.signIssuedAt(time.Now().Unix())

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) signIssuedAt(issuedAt int64) string {
	issued := strconv.FormatInt(issuedAt, 10)
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(issued))
	signature := mac.Sum(nil)
	return issued + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) bool {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return false
	}

	issued := parts[0]
	signature := parts[1]

	issuedAt, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(issuedAt, 0)) > authCookieTTL {
		return false
	}

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(issued))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// IsStaff informa se a requisição foi autenticada como equipe.
func IsStaff(ctx context.Context) bool {
	v, ok := ctx.Value(staffKey).(bool)
	return ok && v
}
