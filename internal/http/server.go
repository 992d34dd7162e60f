package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"lana/internal/cache"
	"lana/internal/core"
	"lana/internal/services"
	"lana/internal/storage"
)

// TransactionSubmitter runs the intake pipeline for one transaction.
type TransactionSubmitter interface {
	Submit(ctx context.Context, t core.Transaction) (services.SubmitResult, error)
}

// BudgetUpserter stores a budget and reports where it landed.
type BudgetUpserter interface {
	Upsert(ctx context.Context, b core.Budget) (services.BudgetResult, error)
}

// PaymentManager manages fixed payments.
type PaymentManager interface {
	Create(ctx context.Context, p core.FixedPayment) (int64, error)
	List(ctx context.Context, userID int64) ([]core.FixedPayment, error)
}

// ReadStore serves the read-only endpoints.
type ReadStore interface {
	ListTransactionsByUser(ctx context.Context, userID int64) ([]core.Transaction, error)
	ListBudgetsWithSpent(ctx context.Context, userID int64) ([]storage.BudgetWithSpent, error)
	MonthlyReport(ctx context.Context, userID int64, year, month int) ([]storage.CategoryTotal, error)
	ListNotificationsByUser(ctx context.Context, userID int64) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Ensure interface conformance
var (
	_ TransactionSubmitter = (*services.IntakeService)(nil)
	_ BudgetUpserter       = (*services.BudgetService)(nil)
	_ PaymentManager       = (*services.PaymentService)(nil)
	_ ReadStore            = (*storage.SQLiteRepository)(nil)
)

type Server struct {
	http.Server

	intake   TransactionSubmitter
	budgets  BudgetUpserter
	payments PaymentManager
	store    ReadStore

	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// Monthly reports are read-only aggregates, cached briefly and dropped
	// whenever an accepted transaction touches the month.
	reportCache  *cache.LRUCache[[]storage.CategoryTotal]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, intake TransactionSubmitter, budgets BudgetUpserter, payments PaymentManager, store ReadStore) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		intake:       intake,
		budgets:      budgets,
		payments:     payments,
		store:        store,
		rateLimiter:  newRateLimiter(),
		metrics:      &securityMetrics{},
		reportCache:  cache.NewLRUCache[[]storage.CategoryTotal](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("POST /transacciones", s.withMiddleware(s.handleSubmitTransaction))
	mux.HandleFunc("GET /transacciones/{usuario_id}", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("POST /presupuestos", s.withMiddleware(s.handleUpsertBudget))
	mux.HandleFunc("GET /presupuestos/{usuario_id}", s.withMiddleware(s.handleListBudgets))
	mux.HandleFunc("GET /reporte/{usuario_id}/{anio}/{mes}", s.withMiddleware(s.handleMonthlyReport))
	mux.HandleFunc("GET /notificaciones/{usuario_id}", s.withMiddleware(s.handleListNotifications))
	mux.HandleFunc("PUT /notificaciones/{id}/leida", s.withMiddleware(s.handleMarkNotificationRead))
	mux.HandleFunc("POST /pagos_fijos", s.withMiddleware(s.handleCreateFixedPayment))
	mux.HandleFunc("GET /pagos_fijos/{usuario_id}", s.withMiddleware(s.handleListFixedPayments))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	return s
}

// withMiddleware adds security headers, rate limiting, and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r, s.metrics)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit writes only; reads are cheap and cacheable.
		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// Shutdown stops the server together with its cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
