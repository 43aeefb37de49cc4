package timeseries

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedFilename is wrapped by every *FilenameError.
var ErrMalformedFilename = errors.New("malformed image filename")

// FilenameError reports why a filename could not be turned into a timestamp.
type FilenameError struct {
	Name   string
	Reason string
}

func (e *FilenameError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformedFilename, e.Name, e.Reason)
}

func (e *FilenameError) Unwrap() error {
	return ErrMalformedFilename
}

// QueryTime is an image filename expressed in the sensor log's timestamp domain.
type QueryTime struct {
	// Timestamp is formatted with RecordLayout.
	Timestamp string `json:"timestamp"`

	// Millis is Timestamp in milliseconds since the Unix epoch.
	Millis int64 `json:"time_ms"`
}

// Normalizer maps image filenames of the form DD-MM_HH-MM-SS (optionally
// DD-MM-YYYY_HH-MM-SS) onto record timestamps.
//
// The extension and any "_"-separated tokens after the clock token are
// ignored, so "03-07_14-05-09_merged_1712.jpg" parses like "03-07_14-05-09".
type Normalizer struct {
	// Year is used when the filename carries no year.
	Year int

	// Location is the wall clock both filenames and records are written in.
	Location *time.Location
}

func NewNormalizer(year int, loc *time.Location) Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return Normalizer{Year: year, Location: loc}
}

// Parse converts a filename (with or without directory and extension).
func (n Normalizer) Parse(filename string) (QueryTime, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	fail := func(format string, args ...any) (QueryTime, error) {
		return QueryTime{}, &FilenameError{Name: base, Reason: fmt.Sprintf(format, args...)}
	}

	tokens := strings.Split(stem, "_")
	if len(tokens) < 2 {
		return fail("expected DD-MM_HH-MM-SS, got %d token(s)", len(tokens))
	}

	dateParts := strings.Split(tokens[0], "-")
	if len(dateParts) != 2 && len(dateParts) != 3 {
		return fail("date %q must be DD-MM or DD-MM-YYYY", tokens[0])
	}

	clockParts := strings.Split(tokens[1], "-")
	if len(clockParts) != 3 {
		return fail("time %q must be HH-MM-SS", tokens[1])
	}

	day, err := parseNumber(dateParts[0])
	if err != nil {
		return fail("day: %v", err)
	}
	month, err := parseNumber(dateParts[1])
	if err != nil {
		return fail("month: %v", err)
	}

	year := n.Year
	if len(dateParts) == 3 {
		if year, err = parseNumber(dateParts[2]); err != nil {
			return fail("year: %v", err)
		}
	}
	if year <= 0 {
		return fail("no year in filename and none configured")
	}

	hour, err := parseNumber(clockParts[0])
	if err != nil {
		return fail("hour: %v", err)
	}
	minute, err := parseNumber(clockParts[1])
	if err != nil {
		return fail("minute: %v", err)
	}
	second, err := parseNumber(clockParts[2])
	if err != nil {
		return fail("second: %v", err)
	}

	switch {
	case month < 1 || month > 12:
		return fail("month %d out of range", month)
	case day < 1 || day > daysIn(year, time.Month(month)):
		return fail("day %d out of range for %04d-%02d", day, year, month)
	case hour > 23:
		return fail("hour %d out of range", hour)
	case minute > 59:
		return fail("minute %d out of range", minute)
	case second > 59:
		return fail("second %d out of range", second)
	}

	loc := n.Location
	if loc == nil {
		loc = time.Local
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)

	return QueryTime{
		Timestamp: t.Format(RecordLayout),
		Millis:    t.UnixMilli(),
	}, nil
}

// parseNumber accepts plain decimal digits only; strconv.Atoi alone would let
// signs through.
func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not numeric", s)
		}
	}
	return strconv.Atoi(s)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
