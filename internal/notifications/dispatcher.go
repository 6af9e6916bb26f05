package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joseph3559/letrents-backend/pkg/logger"
)

// DispatchRequest is the plain data object handed to the notification system.
// It carries everything downstream delivery needs; the reconciliation core
// never depends on how (or whether) the notification is actually sent.
type DispatchRequest struct {
	RecipientID uuid.UUID
	Title       string
	Message     string
	Metadata    map[string]any
}

// Dispatcher delivers notification requests. Implementations run after the
// settlement transaction commits and their failures never escalate into a
// settlement failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// LogDispatcher records dispatch requests in the structured log. Real
// delivery is driven by the outbox publisher; this keeps a local audit trail
// and serves as the default collaborator in environments without a
// notification backend.
type LogDispatcher struct {
	logg *logger.Logger
}

// NewLogDispatcher builds the logging dispatcher.
func NewLogDispatcher(logg *logger.Logger) (*LogDispatcher, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &LogDispatcher{logg: logg}, nil
}

func (d *LogDispatcher) Dispatch(ctx context.Context, req DispatchRequest) error {
	fields := map[string]any{
		"recipient_id": req.RecipientID.String(),
		"title":        req.Title,
	}
	for key, value := range req.Metadata {
		fields["meta_"+key] = value
	}
	d.logg.Info(d.logg.WithFields(ctx, fields), "notification dispatch requested")
	return nil
}
