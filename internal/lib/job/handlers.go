package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
)

// SensorReloader is the part of *timeseries.Store the reload handler uses.
type SensorReloader interface {
	Reload(ctx context.Context) (timeseries.LoadStats, error)
}

// InitHandlers registers the task handlers with their dependencies.
func (j *JobService) InitHandlers(sensors SensorReloader, publisher events.Publisher) {
	j.mux.HandleFunc(TaskSensorsReload, func(ctx context.Context, t *Task) error {
		return j.handleSensorsReloadTask(ctx, t, sensors, publisher)
	})
}

// handleSensorsReloadTask reloads the sensor log and tells open pages how it went.
func (j *JobService) handleSensorsReloadTask(ctx context.Context, t *Task, sensors SensorReloader, publisher events.Publisher) error {
	var p SensorsReloadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: failed to unmarshal sensors reload payload: %v", ErrSkipRetry, err)
	}

	j.logger.Info().
		Str("type", TaskSensorsReload).
		Str("reason", p.Reason).
		Msg("Processing sensors reload task")

	stats, err := sensors.Reload(ctx)
	if err != nil {
		if publisher != nil {
			publisher.Publish(events.SensorsReloadFailed, map[string]string{"error": err.Error()})
		}
		if errors.Is(err, timeseries.ErrReloadInProgress) {
			return fmt.Errorf("%w: %v", ErrSkipRetry, err)
		}
		return err
	}

	if publisher != nil {
		publisher.Publish(events.SensorsReloaded, stats)
	}

	j.logger.Info().
		Str("type", TaskSensorsReload).
		Int("valid", stats.Valid).
		Int("skipped", stats.Skipped).
		Msg("Successfully reloaded sensors")

	return nil
}
