package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lana/internal/amqp"
	"lana/internal/core"
)

// AlertProcessor scans active fixed payments and queues one upcoming-payment
// alert per due payment per cycle.
type AlertProcessor struct {
	payments  FixedPaymentStore
	publisher NotificationPublisher
	leadDays  int
}

func NewAlertProcessor(payments FixedPaymentStore, publisher NotificationPublisher, leadDays int) *AlertProcessor {
	return &AlertProcessor{
		payments:  payments,
		publisher: publisher,
		leadDays:  leadDays,
	}
}

// ProcessDueAlerts alerts every active payment whose next pay date falls
// within the lead window. Payments already alerted for that pay date are
// skipped, so a payment gets at most one alert per cycle. Returns how many
// alerts were sent.
func (p *AlertProcessor) ProcessDueAlerts(ctx context.Context, now time.Time) (int, error) {
	if p.payments == nil || p.publisher == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	payments, err := p.payments.ActiveFixedPayments(ctx)
	if err != nil {
		return 0, fmt.Errorf("get active fixed payments: %w", err)
	}

	slog.InfoContext(ctx, "Processing fixed payment alerts",
		"total_active", len(payments),
		"processing_date", now.Format("2006-01-02"),
		"lead_days", p.leadDays)

	alerted := 0

	for _, payment := range payments {
		payDate := nextPayDate(now, payment.PayDay)

		if !withinLeadWindow(now, payDate, p.leadDays) {
			continue
		}
		if payment.LastAlertedOn.Equal(payDate.Time) {
			continue
		}

		msg := amqp.NewNotificationMessage(payment.UserID, core.KindPaymentAlert,
			"Pago fijo próximo",
			fmt.Sprintf("El pago fijo %q de %s vence el %s",
				payment.Name, payment.Amount, payDate.Format("2006-01-02")))
		if err := p.publisher.PublishNotification(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish payment alert",
				"payment_id", payment.ID,
				"user_id", payment.UserID,
				"error", err)
			continue
		}

		if err := p.payments.MarkFixedPaymentAlerted(ctx, payment.ID, payDate); err != nil {
			slog.ErrorContext(ctx, "Failed to mark payment alerted",
				"payment_id", payment.ID,
				"error", err)
			// Continue anyway - the alert was published.
		}

		alerted++
		slog.InfoContext(ctx, "Payment alert queued",
			"payment_id", payment.ID,
			"user_id", payment.UserID,
			"name", payment.Name,
			"pay_date", payDate.Format("2006-01-02"))
	}

	slog.InfoContext(ctx, "Fixed payment alert processing complete",
		"alerted", alerted,
		"total_checked", len(payments))

	return alerted, nil
}

// nextPayDate resolves the next occurrence of payDay on or after now.
// Days past the end of a month clamp to that month's last day, so a payment
// on the 31st still falls due in February.
func nextPayDate(now time.Time, payDay int) core.Date {
	year, month := now.Year(), int(now.Month())

	day := clampToMonth(payDay, year, month)
	if day < now.Day() {
		month++
		if month > 12 {
			month = 1
			year++
		}
		day = clampToMonth(payDay, year, month)
	}
	return core.NewDate(year, month, day)
}

func clampToMonth(day, year, month int) int {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		return lastDay
	}
	return day
}

func withinLeadWindow(now time.Time, payDate core.Date, leadDays int) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	diff := int(payDate.Sub(today).Hours() / 24)
	return diff >= 0 && diff <= leadDays
}
