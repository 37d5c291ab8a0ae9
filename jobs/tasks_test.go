package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	to      []string
	failing bool
}

func (m *captureMailer) Send(_ context.Context, to, _, _ string) error {
	if m.failing {
		return errors.New("smtp down")
	}
	m.to = append(m.to, to)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendEmailHandlerDelivers(t *testing.T) {
	mailer := &captureMailer{}
	handler := NewSendEmailHandler(mailer, discardLogger())

	task, err := NewSendEmailTask(SendEmailPayload{To: "ops@kivu.example", Subject: "hi", Body: "body"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []string{"ops@kivu.example"}, mailer.to)
}

func TestSendEmailHandlerSkipsBadPayload(t *testing.T) {
	handler := NewSendEmailHandler(&captureMailer{}, discardLogger())

	err := handler(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSendEmailHandlerPropagatesFailure(t *testing.T) {
	handler := NewSendEmailHandler(&captureMailer{failing: true}, discardLogger())

	task, err := NewSendEmailTask(SendEmailPayload{To: "ops@kivu.example"})
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))
}

type fakeScanner struct {
	alerted int
	err     error
}

func (f *fakeScanner) ScanThresholds(context.Context) (int, error) {
	return f.alerted, f.err
}

func TestThresholdScanHandler(t *testing.T) {
	handler := NewThresholdScanHandler(&fakeScanner{alerted: 2}, discardLogger())
	require.NoError(t, handler(context.Background(), NewThresholdScanTask()))

	handler = NewThresholdScanHandler(&fakeScanner{err: errors.New("db down")}, discardLogger())
	require.Error(t, handler(context.Background(), NewThresholdScanTask()))
}
