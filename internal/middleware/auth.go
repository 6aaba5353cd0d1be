// Package middleware содержит HTTP middleware для сервиса согласования начислений.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mmeshcher/fcoaccruals/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityHeader содержит пользователя и его роли, подписанные внешним шлюзом.
const IdentityHeader = "X-Accruals-Identity"

// IdentityMiddleware проверяет подписанный заголовок пользователя.
// Формат значения: base64url("user\nrole1,role2") + "." + hex(HMAC-SHA256).
type IdentityMiddleware struct {
	secretKey []byte
}

// NewIdentityMiddleware создаёт новый экземпляр IdentityMiddleware с указанным секретным ключом.
// Пустой секрет заменяется случайным: такие заголовки может подписать только сам процесс.
func NewIdentityMiddleware(secret string) *IdentityMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &IdentityMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет заголовок и добавляет пользователя в контекст запроса.
func (a *IdentityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := r.Header.Get(IdentityHeader)
		if value == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		id, ok := a.parse(value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Sign возвращает значение заголовка для пользователя.
func (a *IdentityMiddleware) Sign(id model.Identity) string {
	roles := make([]string, 0, len(id.Roles))
	for _, r := range id.Roles {
		roles = append(roles, string(r))
	}
	payload := base64.RawURLEncoding.EncodeToString([]byte(id.UserID + "\n" + strings.Join(roles, ",")))
	return payload + "." + a.signature(payload)
}

func (a *IdentityMiddleware) signature(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *IdentityMiddleware) parse(value string) (model.Identity, bool) {
	payload, signature, found := strings.Cut(value, ".")
	if !found {
		return model.Identity{}, false
	}

	if !hmac.Equal([]byte(signature), []byte(a.signature(payload))) {
		return model.Identity{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return model.Identity{}, false
	}

	user, roles, found := strings.Cut(string(raw), "\n")
	if !found || user == "" {
		return model.Identity{}, false
	}

	id := model.Identity{UserID: user}
	for _, name := range strings.Split(roles, ",") {
		// неизвестные роли игнорируются
		if role, ok := model.ParseRole(strings.TrimSpace(name)); ok {
			id.Roles = append(id.Roles, role)
		}
	}
	return id, true
}

// WithIdentity сохраняет пользователя в контексте.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentityFromContext извлекает пользователя из контекста запроса.
func GetIdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}
