package service

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"fraud-detection-service/internal/client"
	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// IngestWorker drains the activity topic and runs each event through the
// processing pipeline. One worker per server instance; Kafka consumer groups
// handle partition balancing across instances.
type IngestWorker struct {
	consumer  *client.KafkaConsumer
	telemetry *TelemetryService
}

func NewIngestWorker(consumer *client.KafkaConsumer, telemetry *TelemetryService) *IngestWorker {
	return &IngestWorker{
		consumer:  consumer,
		telemetry: telemetry,
	}
}

// Run consumes until the context is cancelled. Broker errors back off and
// retry; poison messages are logged and skipped.
func (w *IngestWorker) Run(ctx context.Context) {
	util.Info("Ingest worker started")

	for {
		msg, err := w.consumer.ConsumeMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				util.Info("Ingest worker stopped")
				return
			}
			util.Error("Failed to consume activity event", util.ErrorField(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event model.ActivityEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			util.Error("Discarding undecodable activity event",
				util.Int("bytes", len(msg.Value)),
				util.ErrorField(err))
			continue
		}

		if err := w.telemetry.Process(ctx, &event); err != nil {
			util.Error("Failed to process activity event",
				util.Int64("employee_id", event.EmployeeID),
				util.ErrorField(err))
		}
	}
}
