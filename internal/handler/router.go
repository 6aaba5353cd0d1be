package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	custommiddleware "github.com/mmeshcher/fcoaccruals/internal/middleware"
)

const (
	actionRateLimit  = 120
	actionRateWindow = time.Minute
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса согласования начислений.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
	})

	r.Use(chimiddleware.Recoverer)
	r.Use(secureMiddleware.Handler)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(custommiddleware.GzipRequestMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.identity.Middleware)

		r.Get("/context", h.GetContext)
		r.Get("/orders", h.GetOrders)

		r.Route("/actions", func(r chi.Router) {
			r.Use(httprate.Limit(actionRateLimit, actionRateWindow,
				httprate.WithKeyFuncs(rateLimitKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				}),
			))

			r.Post("/sum", h.Sum)
			r.Post("/toggle-approval", h.ToggleApproval)
			r.Post("/advance", h.Advance)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

// rateLimitKey ограничивает действия по пользователю, а без него по адресу клиента.
func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := custommiddleware.GetIdentityFromContext(r.Context()); ok {
		if user := strings.TrimSpace(strings.ToLower(id.UserID)); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
