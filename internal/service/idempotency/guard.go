package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// DefaultTTL — срок хранения ответа по idempotency-key.
const DefaultTTL = 24 * time.Hour

// Response — сохранённый ответ, который повторяется для запроса с тем же ключом.
type Response struct {
	HTTPStatus int
	Body       []byte
}

// Guard резервирует idempotency-key на время обработки запроса и хранит его результат.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard поверх репозитория idempotency-записей.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash считает отпечаток запроса для сравнения повторов.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin резервирует ключ.
// Возвращает (nil, nil), если запрос нужно выполнить, и сохранённый ответ, если он уже выполнен.
// Ключ с другим телом запроса даёт ErrIdempotencyHashMismatch, незавершённый запрос даёт ErrIdempotencyInProgress.
func (g *Guard) Begin(key, requestHash string) (*Response, error) {
	record, err := g.repo.CreateProcessing(key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			return &Response{HTTPStatus: record.HTTPStatus, Body: record.ResponseBody}, nil
		default:
			return nil, domain.ErrIdempotencyInProgress
		}
	default:
		return nil, err
	}
}

// Complete сохраняет результат обработки.
// Ответ 5xx освобождает ключ, чтобы клиент мог повторить запрос.
func (g *Guard) Complete(key string, httpStatus int, body []byte) {
	logger := g.logger.WithFields(log.Fields{"idempotency_key": key, "http_status": httpStatus})

	var err error
	switch {
	case httpStatus >= 500:
		err = g.repo.Delete(key)
	case httpStatus >= 400:
		err = g.repo.MarkFailed(key, body, httpStatus)
	default:
		err = g.repo.MarkDone(key, body, httpStatus)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to persist idempotency result")
	}
}
