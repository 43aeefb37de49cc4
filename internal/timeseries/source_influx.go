package timeseries

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// FluxQuerier is the part of api.QueryAPI an InfluxSource needs.
type FluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// InfluxSource reads sensor rows from an InfluxDB bucket. Every field of the
// measurement is pivoted into a column so each row looks like a CSV line.
type InfluxSource struct {
	Bucket      string
	Measurement string

	// Range is how far back the query reaches, for example 30 days.
	Range time.Duration

	// Location formats the row timestamps, which must share the filename clock.
	// Rows also carry the exact instant, so the loader never re-parses them.
	Location *time.Location

	querier FluxQuerier
	client  influxdb2.Client
}

type InfluxOptions struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Range       time.Duration
	Location    *time.Location
}

// NewInfluxSource opens a client for opts. Close releases it.
func NewInfluxSource(opts InfluxOptions) *InfluxSource {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	src := NewInfluxSourceWithQuerier(client.QueryAPI(opts.Org), opts)
	src.client = client
	return src
}

// NewInfluxSourceWithQuerier builds a source on an existing query API.
func NewInfluxSourceWithQuerier(q FluxQuerier, opts InfluxOptions) *InfluxSource {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &InfluxSource{
		Bucket:      opts.Bucket,
		Measurement: opts.Measurement,
		Range:       opts.Range,
		Location:    loc,
		querier:     q,
	}
}

func (s *InfluxSource) Name() string {
	return fmt.Sprintf("influx:%s/%s", s.Bucket, s.Measurement)
}

// Query is the Flux program Each runs.
func (s *InfluxSource) Query() string {
	rng := s.Range
	if rng <= 0 {
		rng = 30 * 24 * time.Hour
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", s.Bucket)
	fmt.Fprintf(&b, "  |> range(start: -%ds)\n", int64(rng/time.Second))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r[\"_measurement\"] == %q)\n", s.Measurement)
	b.WriteString("  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	b.WriteString("  |> sort(columns: [\"_time\"])")
	return b.String()
}

func (s *InfluxSource) Each(ctx context.Context, fn func(row map[string]string) error) error {
	if s.querier == nil || s.Bucket == "" || s.Measurement == "" {
		return ErrSourceNotFound
	}

	result, err := s.querier.Query(ctx, s.Query())
	if err != nil {
		return fmt.Errorf("query influx: %w", err)
	}
	defer result.Close()

	for result.Next() {
		if err := fn(s.row(result.Record().Time(), result.Record().Values())); err != nil {
			return err
		}
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("read influx result: %w", err)
	}
	return nil
}

func (s *InfluxSource) row(t time.Time, values map[string]interface{}) map[string]string {
	if t.IsZero() {
		return nil
	}

	row := make(map[string]string, len(values)+2)
	for k, v := range values {
		if strings.HasPrefix(k, "_") || k == "result" || k == "table" || v == nil {
			continue
		}
		row[k] = fmt.Sprint(v)
	}
	row[TimestampField] = t.In(s.Location).Format(RecordLayout)
	row[EpochField] = strconv.FormatInt(t.UnixMilli(), 10)
	return row
}

func (s *InfluxSource) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
