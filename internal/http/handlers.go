package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lana/internal/core"
)

type transactionRequest struct {
	UserID      int64       `json:"usuario_id"`
	CategoryID  *int64      `json:"categoria_id"`
	Amount      json.Number `json:"monto"`
	Kind        string      `json:"tipo"`
	Date        string      `json:"fecha"`
	Description string      `json:"descripcion"`
}

type transactionResponse struct {
	Success     bool        `json:"success"`
	ID          int64       `json:"id"`
	UserID      int64       `json:"usuario_id"`
	CategoryID  int64       `json:"categoria_id"`
	Amount      json.Number `json:"monto"`
	Kind        string      `json:"tipo"`
	Date        string      `json:"fecha"`
	Description string      `json:"descripcion"`
}

type rejectedResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Spent   json.Number `json:"spent"`
	Budget  json.Number `json:"budget"`
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}
	if req.CategoryID == nil {
		writeError(w, http.StatusBadRequest, "categoria_id es requerido")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "monto inválido")
		return
	}

	occurredOn, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "fecha inválida (formato AAAA-MM-DD)")
		return
	}

	t := core.Transaction{
		UserID:      req.UserID,
		CategoryID:  *req.CategoryID,
		Amount:      core.Money{Cents: cents},
		Kind:        core.TransactionKind(req.Kind),
		OccurredOn:  occurredOn,
		Description: req.Description,
	}

	result, err := s.intake.Submit(r.Context(), t)
	if err != nil {
		if isClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Transaction submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	if result.Decision.Outcome == core.Reject {
		writeJSON(w, http.StatusBadRequest, rejectedResponse{
			Success: false,
			Error:   "Presupuesto excedido",
			Spent:   moneyNumber(result.Decision.SpentBefore),
			Budget:  moneyNumber(result.Decision.Ceiling),
		})
		return
	}

	// An accepted transaction makes any cached report for its month stale.
	s.reportCache.Delete(reportCacheKey(t.UserID, occurredOn.Year(), occurredOn.Month()))

	saved := result.Transaction
	writeJSON(w, http.StatusOK, transactionResponse{
		Success:     true,
		ID:          saved.ID,
		UserID:      saved.UserID,
		CategoryID:  saved.CategoryID,
		Amount:      moneyNumber(saved.Amount),
		Kind:        string(saved.Kind),
		Date:        saved.OccurredOn.Format("2006-01-02"),
		Description: saved.Description,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "usuario_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "usuario_id inválido")
		return
	}

	transactions, err := s.store.ListTransactionsByUser(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	out := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, transactionResponse{
			Success:     true,
			ID:          t.ID,
			UserID:      t.UserID,
			CategoryID:  t.CategoryID,
			Amount:      moneyNumber(t.Amount),
			Kind:        string(t.Kind),
			Date:        t.OccurredOn.Format("2006-01-02"),
			Description: t.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type budgetRequest struct {
	UserID     int64       `json:"usuario_id"`
	CategoryID *int64      `json:"categoria_id"`
	Ceiling    json.Number `json:"monto_mensual"`
	Month      int         `json:"mes"`
	Year       int         `json:"anio"`
}

type budgetUpsertResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
	Updated bool  `json:"updated"`
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}
	if req.CategoryID == nil {
		writeError(w, http.StatusBadRequest, "categoria_id es requerido")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Ceiling.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "monto_mensual inválido")
		return
	}

	result, err := s.budgets.Upsert(r.Context(), core.Budget{
		UserID:     req.UserID,
		CategoryID: *req.CategoryID,
		Ceiling:    core.Money{Cents: cents},
		Month:      req.Month,
		Year:       req.Year,
	})
	if err != nil {
		if isClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Budget upsert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	writeJSON(w, http.StatusOK, budgetUpsertResponse{Success: true, ID: result.ID, Updated: result.Updated})
}

type budgetEntry struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"usuario_id"`
	CategoryID int64       `json:"categoria_id"`
	Ceiling    json.Number `json:"monto_mensual"`
	Month      int         `json:"mes"`
	Year       int         `json:"anio"`
	Spent      json.Number `json:"gastado"`
	Remaining  json.Number `json:"disponible"`
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "usuario_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "usuario_id inválido")
		return
	}

	budgets, err := s.store.ListBudgetsWithSpent(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List budgets failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	out := make([]budgetEntry, 0, len(budgets))
	for _, bs := range budgets {
		out = append(out, budgetEntry{
			ID:         bs.Budget.ID,
			UserID:     bs.Budget.UserID,
			CategoryID: bs.Budget.CategoryID,
			Ceiling:    moneyNumber(bs.Budget.Ceiling),
			Month:      bs.Budget.Month,
			Year:       bs.Budget.Year,
			Spent:      moneyNumber(bs.Spent),
			Remaining:  moneyNumber(core.Money{Cents: bs.Budget.Ceiling.Cents - bs.Spent.Cents}),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type reportCategory struct {
	CategoryID int64       `json:"categoria_id"`
	Income     json.Number `json:"ingresos"`
	Expense    json.Number `json:"gastos"`
}

type reportResponse struct {
	UserID     int64            `json:"usuario_id"`
	Year       int              `json:"anio"`
	Month      int              `json:"mes"`
	Categories []reportCategory `json:"categorias"`
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "usuario_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "usuario_id inválido")
		return
	}
	year, err := strconv.Atoi(r.PathValue("anio"))
	if err != nil || year < 1 {
		writeError(w, http.StatusBadRequest, "anio inválido")
		return
	}
	month, err := strconv.Atoi(r.PathValue("mes"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "mes inválido")
		return
	}

	key := reportCacheKey(userID, year, month)
	totals, cached := s.reportCache.Get(key)
	if !cached {
		totals, err = s.store.MonthlyReport(r.Context(), userID, year, month)
		if err != nil {
			slog.ErrorContext(r.Context(), "Monthly report failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "error interno")
			return
		}
		s.reportCache.Set(key, totals)
	}

	resp := reportResponse{
		UserID:     userID,
		Year:       year,
		Month:      month,
		Categories: make([]reportCategory, 0, len(totals)),
	}
	for _, ct := range totals {
		resp.Categories = append(resp.Categories, reportCategory{
			CategoryID: ct.CategoryID,
			Income:     moneyNumber(ct.Income),
			Expense:    moneyNumber(ct.Expense),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type notificationEntry struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"usuario_id"`
	Message string `json:"mensaje"`
	Medium  string `json:"medio"`
	Kind    string `json:"tipo"`
	Read    bool   `json:"leida"`
	SentAt  string `json:"enviada_en"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "usuario_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "usuario_id inválido")
		return
	}

	notifications, err := s.store.ListNotificationsByUser(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List notifications failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	out := make([]notificationEntry, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationEntry{
			ID:      n.ID,
			UserID:  n.UserID,
			Message: n.Message,
			Medium:  n.Medium,
			Kind:    string(n.Kind),
			Read:    n.Read,
			SentAt:  n.SentAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "id inválido")
		return
	}

	if err := s.store.MarkNotificationRead(r.Context(), id); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "notificación no encontrada")
			return
		}
		slog.ErrorContext(r.Context(), "Mark notification read failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type fixedPaymentRequest struct {
	UserID int64       `json:"usuario_id"`
	Name   string      `json:"nombre"`
	Amount json.Number `json:"monto"`
	PayDay int         `json:"dia_pago"`
}

type fixedPaymentEntry struct {
	ID     int64       `json:"id"`
	UserID int64       `json:"usuario_id"`
	Name   string      `json:"nombre"`
	Amount json.Number `json:"monto"`
	PayDay int         `json:"dia_pago"`
	Active bool        `json:"activo"`
}

func (s *Server) handleCreateFixedPayment(w http.ResponseWriter, r *http.Request) {
	var req fixedPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "monto inválido")
		return
	}

	id, err := s.payments.Create(r.Context(), core.FixedPayment{
		UserID: req.UserID,
		Name:   req.Name,
		Amount: core.Money{Cents: cents},
		PayDay: req.PayDay,
		Active: true,
	})
	if err != nil {
		if isClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Create fixed payment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) handleListFixedPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "usuario_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "usuario_id inválido")
		return
	}

	payments, err := s.payments.List(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List fixed payments failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "error interno")
		return
	}

	out := make([]fixedPaymentEntry, 0, len(payments))
	for _, p := range payments {
		out = append(out, fixedPaymentEntry{
			ID:     p.ID,
			UserID: p.UserID,
			Name:   p.Name,
			Amount: moneyNumber(p.Amount),
			PayDay: p.PayDay,
			Active: p.Active,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// moneyNumber renders cents as a plain decimal JSON number ("150.00"),
// never a binary float.
func moneyNumber(m core.Money) json.Number {
	return json.Number(m.String())
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func parseDate(raw string) (core.Date, error) {
	for _, format := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(format, raw); err == nil {
			return core.Date{Time: parsed.UTC()}, nil
		}
	}
	return core.Date{}, errors.New("invalid date")
}

func reportCacheKey(userID int64, year, month int) string {
	return fmt.Sprintf("%d:%d:%02d", userID, year, month)
}

// isClientError reports whether err comes from input validation rather
// than infrastructure.
func isClientError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidKind,
		core.ErrInvalidMonth,
		core.ErrInvalidYear,
		core.ErrInvalidDate,
		core.ErrInvalidPayDay,
		core.ErrMissingUser,
		core.ErrMissingCategory,
		core.ErrEmptyName,
		core.ErrLongDescription,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
