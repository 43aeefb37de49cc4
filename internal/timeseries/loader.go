package timeseries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrSourceNotFound is returned by a Source whose backing data does not exist
// or is not configured. The loader turns it into an empty dataset.
var ErrSourceNotFound = errors.New("time series source not found")

// Source yields the raw rows of a tabular time series.
//
// Each calls fn once per row in source order. A row the source could not
// decode is passed as nil so it is counted as skipped. Returning an error
// from fn stops the iteration and Each returns it.
type Source interface {
	Name() string
	Each(ctx context.Context, fn func(row map[string]string) error) error
}

// Loader turns a Source into a sorted Dataset.
type Loader struct {
	location *time.Location
	logger   *zerolog.Logger
}

// NewLoader creates a Loader that parses record timestamps in loc.
func NewLoader(loc *time.Location, logger *zerolog.Logger) *Loader {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Loader{location: loc, logger: logger}
}

// maxLoggedBadRows caps per-row warnings so a broken file does not flood the log.
const maxLoggedBadRows = 3

// Load reads every row of src, keeps the rows with a parseable timestamp and
// returns them sorted by time.
//
// A nil src or one reporting ErrSourceNotFound yields an empty dataset. Any
// other read error fails the whole load. Bad rows never do.
func (l *Loader) Load(ctx context.Context, src Source) (*Dataset, error) {
	start := time.Now()

	if src == nil {
		l.logger.Warn().Msg("no sensor source configured, using empty dataset")
		return EmptyDataset(""), nil
	}

	logger := l.logger.With().Str("source", src.Name()).Logger()
	logger.Info().Msg("loading sensor data")

	stats := LoadStats{Source: src.Name()}
	records := make([]Record, 0, 1024)

	err := src.Each(ctx, func(row map[string]string) error {
		stats.Rows++

		raw := ""
		if row != nil {
			raw = strings.TrimSpace(row[TimestampField])
		}
		if raw == "" {
			if stats.Skipped < maxLoggedBadRows {
				logger.Warn().Int("row", stats.Rows).Msg("row without timestamp")
			}
			stats.Skipped++
			return nil
		}

		ms, err := l.instant(raw, row[EpochField])
		if err != nil {
			if stats.Skipped < maxLoggedBadRows {
				logger.Warn().Int("row", stats.Rows).Str("timestamp", raw).Msg("invalid timestamp")
			}
			stats.Skipped++
			return nil
		}

		fields := make(map[string]string, len(row))
		for k, v := range row {
			if k != TimestampField && k != EpochField {
				fields[k] = v
			}
		}

		records = append(records, Record{Timestamp: raw, Time: ms, Fields: fields})
		stats.Valid++
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			logger.Warn().Err(err).Msg("sensor source not found, using empty dataset")
			return EmptyDataset(src.Name()), nil
		}
		logger.Error().Err(err).Msg("sensor load failed")
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}

	// Stable so equal timestamps keep source order and reloads are reproducible.
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time < records[j].Time })

	if len(records) > 0 {
		stats.First = records[0].Timestamp
		stats.Last = records[len(records)-1].Timestamp
		stats.Columns = columns(records[0].Fields)
	}
	stats.LoadedAt = time.Now()
	stats.Duration = time.Since(start)

	logger.Info().
		Int("rows", stats.Rows).
		Int("valid", stats.Valid).
		Int("skipped", stats.Skipped).
		Str("first", stats.First).
		Str("last", stats.Last).
		Dur("duration", stats.Duration).
		Msg("sensor data loaded")

	return NewDataset(records, stats), nil
}

// instant returns a row's time in Unix milliseconds, from epoch when the
// source supplied one and from the raw timestamp otherwise.
func (l *Loader) instant(raw, epoch string) (int64, error) {
	if epoch = strings.TrimSpace(epoch); epoch != "" {
		return strconv.ParseInt(epoch, 10, 64)
	}
	t, err := time.ParseInLocation(recordParseLayout, raw, l.location)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func columns(fields map[string]string) []string {
	cols := make([]string, 0, len(fields))
	for k := range fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
