// Package resultsink forwards per-node and per-run status updates onto the
// event bus. Result payloads above the inline size threshold are handed off
// to a large-object store and replaced by a reference.
package resultsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/probeflow/probeflow/pkg/eventbus"
	"github.com/probeflow/probeflow/pkg/events"
	"github.com/probeflow/probeflow/pkg/models"
)

// maxInlineResultSize is the largest result payload published inline on the
// bus. Bigger payloads go to the large-object store.
const maxInlineResultSize = 64 * 1024

// LargeObjectStore stores oversized result payloads and returns a reference
// to the stored object.
type LargeObjectStore interface {
	Store(ctx context.Context, key string, payload []byte) (string, error)
}

// EventSink publishes run and node updates as events. Publish failures are
// logged, never propagated: losing a status update must not fail the run.
type EventSink struct {
	bus      eventbus.EventBus
	store    LargeObjectStore
	workerID string
	logger   *slog.Logger
}

// NewEventSink creates an EventSink. store may be nil, in which case
// oversized results stay inline.
func NewEventSink(bus eventbus.EventBus, store LargeObjectStore, workerID string, logger *slog.Logger) *EventSink {
	return &EventSink{
		bus:      bus,
		store:    store,
		workerID: workerID,
		logger:   logger.With("module", "resultsink"),
	}
}

func (s *EventSink) NodeCompleted(ctx context.Context, runID string, result *models.NodeResult) {
	data := result.Data
	ref := ""

	if s.store != nil && len(data) > 0 {
		payload, err := json.Marshal(data)
		if err == nil && len(payload) > maxInlineResultSize {
			key := fmt.Sprintf("%s:%s", runID, result.NodeID)

			ref, err = s.store.Store(ctx, key, payload)
			if err != nil {
				s.logger.Error("Failed to offload oversized result, keeping inline",
					"run_id", runID, "node_id", result.NodeID, "error", err)

				ref = ""
			} else {
				data = nil
			}
		}
	}

	event := events.NodeExecutionFinished{
		BaseEvent:    s.baseEvent(events.NodeExecutionFinishedEvent, ""),
		RunID:        runID,
		NodeID:       result.NodeID,
		Kind:         result.Kind,
		Status:       result.Status,
		Data:         data,
		ResultRef:    ref,
		ErrorMessage: result.Error,
		DurationMs:   result.DurationMs,
		CompletedAt:  result.Timestamp,
	}

	if err := s.bus.Publish(ctx, runID, event); err != nil {
		s.logger.Error("Failed to publish node update", "run_id", runID, "node_id", result.NodeID, "error", err)
	}
}

func (s *EventSink) RunUpdated(ctx context.Context, run *models.Run) {
	var event eventbus.Event

	switch run.Status {
	case models.RunStatusRunning:
		event = events.RunStarted{
			BaseEvent: s.baseEvent(events.RunStartedEvent, run.WorkflowID),
			RunID:     run.ID,
		}
	case models.RunStatusCompleted:
		event = events.RunCompleted{
			BaseEvent:  s.baseEvent(events.RunCompletedEvent, run.WorkflowID),
			RunID:      run.ID,
			DurationMs: run.DurationMs,
		}
	case models.RunStatusFailed:
		event = events.RunFailed{
			BaseEvent:   s.baseEvent(events.RunFailedEvent, run.WorkflowID),
			RunID:       run.ID,
			Error:       run.Error,
			FailedNodes: run.FailedNodes,
			DurationMs:  run.DurationMs,
		}
	case models.RunStatusCancelled:
		event = events.RunCancelled{
			BaseEvent: s.baseEvent(events.RunCancelledEvent, run.WorkflowID),
			RunID:     run.ID,
		}
	case models.RunStatusPending:
		return
	default:
		return
	}

	if err := s.bus.Publish(ctx, run.ID, event); err != nil {
		s.logger.Error("Failed to publish run update", "run_id", run.ID, "status", run.Status, "error", err)
	}
}

func (s *EventSink) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         s.bus.GenerateID(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		WorkerID:   s.workerID,
	}
}
