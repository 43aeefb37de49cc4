package timeseries

import (
	"time"
)

const (
	// TimestampField is the column that carries each record's timestamp.
	TimestampField = "timestamp"

	// EpochField, when a source sets it, carries the record's instant in Unix
	// milliseconds. The loader prefers it over parsing TimestampField, which
	// is ambiguous for wall-clock times repeated at a DST fall-back.
	EpochField = "_epoch_ms"

	// RecordLayout is the canonical record timestamp format (microsecond precision).
	RecordLayout = "2006-01-02 15:04:05.000000"

	// recordParseLayout accepts RecordLayout as well as values without a
	// fractional part: time.Parse takes an optional fraction after the seconds.
	recordParseLayout = "2006-01-02 15:04:05"
)

// Record is one row of the sensor log.
type Record struct {
	// Timestamp is the raw timestamp text as it appeared in the source.
	Timestamp string `json:"timestamp"`

	// Time is Timestamp in milliseconds since the Unix epoch.
	Time int64 `json:"time_ms"`

	// Fields holds every other column of the row.
	Fields map[string]string `json:"fields"`
}

// LoadStats describes how a Dataset was built.
type LoadStats struct {
	Source   string        `json:"source"`
	Rows     int           `json:"rows"`
	Valid    int           `json:"valid"`
	Skipped  int           `json:"skipped"`
	First    string        `json:"first,omitempty"`
	Last     string        `json:"last,omitempty"`
	Columns  []string      `json:"columns,omitempty"`
	LoadedAt time.Time     `json:"loaded_at"`
	Duration time.Duration `json:"duration"`
}

// Match is the sensor context found for one query timestamp.
type Match struct {
	// Fields are the matched record's columns without the timestamp column.
	Fields map[string]string `json:"sensors"`

	// RecordTimestamp is the matched record's raw timestamp.
	RecordTimestamp string `json:"record_timestamp"`

	// QueryTimestamp is the query in RecordLayout.
	QueryTimestamp string `json:"timestamp"`

	Diff time.Duration `json:"diff"`
}

// Dataset is an immutable, timestamp-sorted sensor log.
//
// times[i] == records[i].Time for every i. A Dataset is never mutated after
// NewDataset returns; reloads build a new one.
type Dataset struct {
	records []Record
	times   []int64
	stats   LoadStats
}

// NewDataset builds a Dataset from records that are already sorted by Time.
func NewDataset(records []Record, stats LoadStats) *Dataset {
	times := make([]int64, len(records))
	for i := range records {
		times[i] = records[i].Time
	}

	return &Dataset{
		records: records,
		times:   times,
		stats:   stats,
	}
}

// EmptyDataset returns a dataset that never matches.
func EmptyDataset(source string) *Dataset {
	return NewDataset(nil, LoadStats{Source: source, LoadedAt: time.Now()})
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Records returns the sorted records. Callers must not modify them.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return d.records
}

// Timestamps returns the sorted millisecond timestamps, parallel to Records.
func (d *Dataset) Timestamps() []int64 {
	if d == nil {
		return nil
	}
	return d.times
}

func (d *Dataset) Stats() LoadStats {
	if d == nil {
		return LoadStats{}
	}
	return d.stats
}

// Nearest finds the record closest to q (milliseconds) within tolerance.
func (d *Dataset) Nearest(q int64, tolerance time.Duration) (Record, time.Duration, bool) {
	if d.Len() == 0 {
		return Record{}, 0, false
	}

	idx, diff, ok := Nearest(d.times, q, tolerance.Milliseconds())
	if !ok {
		return Record{}, 0, false
	}

	return d.records[idx], time.Duration(diff) * time.Millisecond, true
}

// MatchQuery resolves a normalised filename timestamp against the dataset.
func (d *Dataset) MatchQuery(q QueryTime, tolerance time.Duration) (Match, bool) {
	rec, diff, ok := d.Nearest(q.Millis, tolerance)
	if !ok {
		return Match{}, false
	}

	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}

	return Match{
		Fields:          fields,
		RecordTimestamp: rec.Timestamp,
		QueryTimestamp:  q.Timestamp,
		Diff:            diff,
	}, true
}
