package job

import (
	"encoding/json"
	"time"
)

const (
	// TaskSensorsReload reloads the sensor log and publishes the result.
	TaskSensorsReload = "sensors:reload"
)

// SensorsReloadPayload says who asked for the reload, for the logs.
type SensorsReloadPayload struct {
	Reason string `json:"reason"`
}

// NewSensorsReloadTask builds a reload task. A reload that overlaps another
// one is not retried; read failures are retried once.
func NewSensorsReloadTask(reason string) (*Task, error) {
	payload, err := json.Marshal(SensorsReloadPayload{Reason: reason})
	if err != nil {
		return nil, err
	}

	return NewTask(
		TaskSensorsReload,
		payload,
		MaxRetry(1),
		Timeout(2*time.Minute),
	), nil
}
