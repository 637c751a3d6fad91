package runs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openaire-nl/nl-stats/model"
	"go.uber.org/zap"
)

// RunService executes a requested run.
type RunService interface {
	Execute(ctx context.Context, req model.RunRequest) (*model.Run, error)
}

// CompletionPublisher announces finished runs.
type CompletionPublisher interface {
	PublishRunCompleted(ctx context.Context, requestID string, run *model.Run, runErr error) error
}

// HandleRunRequested processes one coverage.run.requested message: it runs
// the request through service and, when publisher is set, reports the
// outcome. The run's own error is returned after publishing.
func HandleRunRequested(
	ctx context.Context,
	msg []byte,
	service RunService,
	publisher CompletionPublisher,
	logger *zap.Logger,
) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var event RunRequestedEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("failed to unmarshal RunRequestedEvent: %w", err)
	}

	if event.EventType != EventTypeRunRequested || event.EventID == "" {
		return fmt.Errorf("invalid event: type %q id %q", event.EventType, event.EventID)
	}

	req := event.Request
	if req.ID == "" {
		req.ID = event.EventID
	}

	logger.Info("Processing run request", zap.String("run", req.ID), zap.Bool("store", req.Store))

	run, runErr := service.Execute(ctx, req)

	if publisher != nil {
		if err := publisher.PublishRunCompleted(ctx, req.ID, run, runErr); err != nil {
			logger.Warn("Failed to publish run completion", zap.String("run", req.ID), zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", req.ID, runErr)
	}

	logger.Info("Run request processed", zap.String("run", req.ID), zap.String("status", run.Status), zap.String("file", run.OutputFile))
	return nil
}
