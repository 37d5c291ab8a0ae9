package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kivu-erp/kivu-erp/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeThresholdScan is the cron task that sweeps stock thresholds.
	TaskTypeThresholdScan = "stock:threshold_scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewThresholdScanTask constructs the periodic threshold sweep task.
func NewThresholdScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeThresholdScan, nil)
}

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer delivers mail over plain SMTP (Mailpit in development).
type SMTPMailer struct {
	Addr string
	From string
}

// Send writes one message to the SMTP server.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg))
}

// NewSendEmailHandler returns the handler processing TaskTypeSendEmail tasks.
func NewSendEmailHandler(mailer Mailer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			return fmt.Errorf("send email to %s: %w", payload.To, err)
		}
		logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
}

// ThresholdScanner sweeps stock thresholds and returns the alert count.
type ThresholdScanner interface {
	ScanThresholds(ctx context.Context) (int, error)
}

// NewThresholdScanHandler returns the handler processing threshold sweeps.
func NewThresholdScanHandler(scanner ThresholdScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		alerted, err := scanner.ScanThresholds(ctx)
		if err != nil {
			return fmt.Errorf("threshold scan: %w", err)
		}
		if alerted > 0 {
			logger.Info("stock threshold alerts sent", slog.Int("count", alerted))
		}
		return nil
	}
}

// Instrument wraps a handler with job run metrics.
func Instrument(metrics *jobmetrics.Metrics, job string, handler asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(job)
		return tracker.End(handler(ctx, t))
	}
}
