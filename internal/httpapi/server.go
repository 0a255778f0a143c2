// Package httpapi реализует REST API корзин поверх сервиса корзин.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/pricing"
	"github.com/vladislavdragonenkov/shopcart/internal/service/cart"
	"github.com/vladislavdragonenkov/shopcart/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey — заголовок с ключом идемпотентности создания корзины.
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// CartService — операции корзины, которые нужны API.
type CartService interface {
	CreateCart(ctx context.Context, req cart.CreateCartRequest) (pricing.Summary, error)
	GetCartSummary(ctx context.Context, cartID string) (pricing.Summary, error)
	AddItem(ctx context.Context, cartID string, input cart.ItemInput) (pricing.Summary, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (pricing.Summary, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (pricing.Summary, error)
	ClearCart(ctx context.Context, cartID string) (pricing.Summary, error)
	DeleteCart(ctx context.Context, cartID string) error
	ListCarts(ctx context.Context) ([]string, error)
}

// Metrics записывает длительность запросов.
type Metrics interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}

// Server — HTTP-обработчик REST API корзин.
type Server struct {
	service     CartService
	guard       *idempotency.Guard
	metrics     Metrics
	logger      *log.Entry
	corsOrigins []string
	now         func() time.Time
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger API.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics задаёт получателя HTTP-метрик.
func WithMetrics(metrics Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithIdempotency включает поддержку Idempotency-Key для POST /api/v1/cart.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(s *Server) {
		s.guard = guard
	}
}

// WithCORSOrigins ограничивает список разрешённых origin; пустой список разрешает все.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// NewServer создаёт REST API.
func NewServer(service CartService, options ...Option) *Server {
	s := &Server{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = log.WithFields(log.Fields{"component": "http-api", "layer": "transport"})
	}
	return s
}

// Handler возвращает корневой обработчик с маршрутами и middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/cart", s.handleCreateCart)
	mux.HandleFunc("GET /api/v1/cart/{cart_id}", s.handleGetCart)
	mux.HandleFunc("DELETE /api/v1/cart/{cart_id}", s.handleDeleteCart)
	mux.HandleFunc("POST /api/v1/cart/{cart_id}/items", s.handleAddItem)
	mux.HandleFunc("DELETE /api/v1/cart/{cart_id}/items", s.handleClearCart)
	mux.HandleFunc("DELETE /api/v1/cart/{cart_id}/items/{item_id}", s.handleRemoveItem)
	mux.HandleFunc("PUT /api/v1/cart/{cart_id}/items/quantity", s.handleUpdateQuantity)
	mux.HandleFunc("GET /api/v1/carts", s.handleListCarts)

	corsOptions := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}
	if len(s.corsOrigins) > 0 {
		corsOptions.AllowedOrigins = s.corsOrigins
		corsOptions.AllowCredentials = true
	}

	return s.withAccessLog(cors.New(corsOptions).Handler(s.withRecover(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: s.now()})
}

func (s *Server) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || s.guard == nil {
		status, payload := s.createCart(r.Context(), body)
		s.writeJSON(w, status, payload)
		return
	}

	replay, err := s.guard.Begin(key, idempotency.RequestHash(r.Method, r.URL.Path, body))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if replay != nil {
		w.Header().Set(headerReplayed, "true")
		s.writeRaw(w, replay.HTTPStatus, replay.Body)
		return
	}

	// Паника дойдёт до withRecover и станет 500: ключ освобождаем так же, как для 5xx.
	defer func() {
		if rec := recover(); rec != nil {
			s.guard.Complete(key, http.StatusInternalServerError, nil)
			panic(rec)
		}
	}()

	status, payload := s.createCart(r.Context(), body)
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.guard.Complete(key, http.StatusInternalServerError, nil)
		s.writeError(w, err)
		return
	}
	s.guard.Complete(key, status, encoded)
	s.writeRaw(w, status, encoded)
}

func (s *Server) createCart(ctx context.Context, body []byte) (int, any) {
	var req createCartRequest
	if err := decodeJSON(body, &req); err != nil {
		return s.failure(err)
	}
	serviceReq, err := req.toServiceRequest()
	if err != nil {
		return s.failure(err)
	}

	summary, err := s.service.CreateCart(ctx, serviceReq)
	if err != nil {
		return s.failure(err)
	}

	return http.StatusCreated, createCartResponse{
		CartID:    summary.CartID,
		Summary:   newSummaryResponse(summary),
		Timestamp: s.now(),
	}
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.GetCartSummary(r.Context(), r.PathValue("cart_id"))
	s.writeSummary(w, summary, err)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(body, &req); err != nil {
		s.writeError(w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		s.writeError(w, err)
		return
	}

	summary, err := s.service.AddItem(r.Context(), r.PathValue("cart_id"), input)
	s.writeSummary(w, summary, err)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.RemoveItem(r.Context(), r.PathValue("cart_id"), r.PathValue("item_id"))
	s.writeSummary(w, summary, err)
}

func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req updateQuantityRequest
	if err := decodeJSON(body, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		s.writeError(w, errQuantityRequired)
		return
	}

	summary, err := s.service.UpdateItemQuantity(r.Context(), r.PathValue("cart_id"), req.ItemID, *req.Quantity)
	s.writeSummary(w, summary, err)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ClearCart(r.Context(), r.PathValue("cart_id"))
	s.writeSummary(w, summary, err)
}

func (s *Server) handleDeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCart(r.Context(), r.PathValue("cart_id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCarts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.service.ListCarts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listCartsResponse{CartIDs: ids})
}

func (s *Server) writeSummary(w http.ResponseWriter, summary pricing.Summary, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (s *Server) failure(err error) (int, any) {
	status, payload := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("cart request failed")
	}
	return status, payload
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, payload := s.failure(err)
	s.writeJSON(w, status, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		status = http.StatusInternalServerError
		encoded = []byte(`{"error":{"code":"INTERNAL","message":"internal server error"}}`)
	}
	s.writeRaw(w, status, encoded)
}

func (s *Server) writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.WithError(err).Debug("failed to write response body")
	}
}
