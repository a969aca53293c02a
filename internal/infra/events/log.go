package events

import (
	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

// LogPublisher writes lifecycle events to the structured log. Used when no
// Kafka brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.With(zap.String("component", "events.log"))}
}

func (p *LogPublisher) Publish(e domain.SheetEvent) {
	p.logger.Info("sheet event",
		zap.String("type", string(e.Type)),
		zap.String("tenant_id", e.TenantID),
		zap.String("sheet_id", e.SheetID),
		zap.String("state", string(e.State)),
		zap.String("attachment_id", e.AttachmentID),
		zap.Time("occurred_at", e.OccurredAt),
	)
}

func (p *LogPublisher) Close() error {
	return nil
}
