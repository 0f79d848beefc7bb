package events

import (
	"go.uber.org/zap"
)

// LogProducer writes events to the log instead of Kafka. It is used when no
// brokers are configured.
type LogProducer struct {
	logger *zap.Logger
}

func NewLogProducer(logger *zap.Logger) *LogProducer {
	return &LogProducer{logger: logger.Named("event_log")}
}

func (p *LogProducer) Produce(event Event) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Uint("company_id", event.CompanyID),
	}
	if event.WorkLog != nil {
		fields = append(fields,
			zap.Uint("worklog_id", event.WorkLog.ID),
			zap.String("job_display_id", event.WorkLog.JobDisplayID),
			zap.String("status", event.WorkLog.Status),
		)
	}
	if len(event.WorkLogIDs) > 0 {
		fields = append(fields, zap.Uints("worklog_ids", event.WorkLogIDs))
	}
	p.logger.Info("Work log event", fields...)
}

func (p *LogProducer) Close() {}
