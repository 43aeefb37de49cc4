package service

import (
	"errors"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/lib/job"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/rs/zerolog"
)

// SensorReloadQueue queues a background reload of the sensor log.
// *server.Server satisfies it.
type SensorReloadQueue interface {
	EnqueueSensorReload(reason string) error
}

type SensorMatch struct {
	Filename string            `json:"filename"`
	Matched  bool              `json:"matched"`
	Match    *timeseries.Match `json:"match,omitempty"`

	// Timestamp is the filename's normalised time, set even without a match.
	Timestamp string `json:"timestamp"`
}

type SensorService struct {
	sensors *timeseries.Store
	queue   SensorReloadQueue
	logger  *zerolog.Logger
}

func NewSensorService(sensors *timeseries.Store, queue SensorReloadQueue, logger *zerolog.Logger) *SensorService {
	return &SensorService{sensors: sensors, queue: queue, logger: logger}
}

// Match finds the sensor row for each filename. A malformed filename fails
// the whole request with timeseries.ErrMalformedFilename.
func (s *SensorService) Match(filenames []string) ([]SensorMatch, error) {
	matcher := s.sensors.Matcher()
	out := make([]SensorMatch, 0, len(filenames))
	for _, f := range filenames {
		m, ok, err := matcher.Match(f)
		if err != nil {
			return nil, err
		}
		res := SensorMatch{Filename: f, Matched: ok, Timestamp: m.QueryTimestamp}
		if ok {
			res.Match = &m
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *SensorService) Status() timeseries.Status {
	return s.sensors.Status()
}

// Reload queues a reload. The result arrives on the event hub.
func (s *SensorService) Reload(reason string) error {
	err := s.queue.EnqueueSensorReload(reason)
	switch {
	case errors.Is(err, job.ErrQueueFull):
		return errs.NewTooManyRequestsError("A sensor reload is already queued")
	case errors.Is(err, job.ErrNotRunning):
		return errs.NewServiceUnavailableError("Background workers are not running", true)
	case err != nil:
		return err
	}
	s.logger.Info().Str("reason", reason).Msg("sensor reload queued")
	return nil
}
