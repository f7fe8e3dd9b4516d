package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

// ErrInProgress возвращается, пока первый запрос с тем же ключом не завершён.
var ErrInProgress = errors.New("request with the same idempotency key is already processing")

// Response: сохраняемый ответ на запрос.
type Response struct {
	Status int
	Body   []byte
}

// Guard выполняет обработчик не более одного раза на ключ и воспроизводит сохранённый ответ.
type Guard struct {
	repo     domain.IdempotencyRepository
	ttl      time.Duration
	logger   *log.Entry
	requests *prometheus.CounterVec
	now      func() time.Time
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTTL задаёт срок хранения ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardRegisterer задаёт реестр prometheus.
func WithGuardRegisterer(registerer prometheus.Registerer) GuardOption {
	return func(g *Guard) {
		g.requests = newGuardRequests(registerer)
	}
}

// NewGuard создаёт Guard поверх хранилища ключей.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    domain.DefaultIdempotencyTTL,
		logger: log.WithField("component", "idempotency"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(g)
	}
	if g.requests == nil {
		g.requests = newGuardRequests(nil)
	}
	return g
}

// RequestHash связывает ключ с операцией и телом запроса.
func RequestHash(scope string, payload []byte) string {
	sum := sha256.Sum256(append([]byte(scope+":"), payload...))
	return hex.EncodeToString(sum[:])
}

// Do выполняет handler для нового ключа. Для известного ключа возвращает сохранённый ответ
// (replayed = true), ErrInProgress или ErrIdempotencyHashMismatch.
func (g *Guard) Do(key, scope string, payload []byte, handler func() (Response, error)) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Response{}, false, domain.ErrIdempotencyKeyRequired
	}

	record, err := g.repo.CreateProcessing(key, RequestHash(scope, payload), g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, record, err)
	}

	resp, runErr := handler()
	if runErr != nil {
		g.requests.WithLabelValues("failed").Inc()
		g.store(key, failureResponse(runErr), true)
		return Response{}, false, runErr
	}

	g.requests.WithLabelValues("executed").Inc()
	g.store(key, resp, resp.Status >= http.StatusBadRequest)
	return resp, false, nil
}

func (g *Guard) replay(key string, record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		g.requests.WithLabelValues("mismatch").Inc()
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		g.logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		return Response{}, false, fmt.Errorf("create idempotency record: %w", createErr)
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		g.requests.WithLabelValues("replayed").Inc()
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		return Response{Status: status, Body: record.ResponseBody}, true, nil
	case domain.IdempotencyStatusProcessing:
		g.requests.WithLabelValues("in_progress").Inc()
		return Response{}, false, ErrInProgress
	default:
		return Response{}, false, fmt.Errorf("unknown idempotency record status %q", record.Status)
	}
}

func (g *Guard) store(key string, resp Response, failed bool) {
	var err error
	if failed {
		err = g.repo.MarkFailed(key, resp.Body, resp.Status)
	} else {
		err = g.repo.MarkDone(key, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

func failureResponse(runErr error) Response {
	body, err := json.Marshal(map[string]string{"error": runErr.Error()})
	if err != nil {
		body = nil
	}
	return Response{Status: http.StatusInternalServerError, Body: body}
}
