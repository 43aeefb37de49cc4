package timeseries

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrReloadInProgress is returned when Reload is called while another reload runs.
var ErrReloadInProgress = errors.New("sensor reload already in progress")

// SourceFunc resolves the source for the next load. It is called on every
// reload so settings changes (a new CSV path, another bucket) take effect.
type SourceFunc func() (Source, error)

// Status is a point-in-time view of the store for health and status endpoints.
type Status struct {
	Loading     bool      `json:"loading"`
	Records     int       `json:"records"`
	Stats       LoadStats `json:"stats"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	Tolerance   string    `json:"tolerance"`
}

// Store publishes the current Dataset to concurrent readers.
//
// Readers take a snapshot with a single atomic load and never block. A reload
// builds a complete new Dataset off to the side and swaps it in with one
// atomic store, so a reader sees either the old dataset or the new one and
// never a mix. A failed reload leaves the previous dataset in place.
type Store struct {
	current atomic.Pointer[Dataset]
	reload  sync.Mutex
	loading atomic.Bool

	source     SourceFunc
	loader     *Loader
	normalizer atomic.Pointer[Normalizer]
	tolerance  atomic.Int64

	mu          sync.RWMutex
	lastErr     error
	lastAttempt time.Time

	logger *zerolog.Logger
}

type StoreOptions struct {
	Source     SourceFunc
	Loader     *Loader
	Normalizer Normalizer
	Tolerance  time.Duration
	Logger     *zerolog.Logger
}

// NewStore returns a store holding an empty dataset. Call Reload to fill it.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	loader := opts.Loader
	if loader == nil {
		loader = NewLoader(opts.Normalizer.Location, logger)
	}

	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	s := &Store{
		source: opts.Source,
		loader: loader,
		logger: logger,
	}
	n := opts.Normalizer
	s.normalizer.Store(&n)
	s.tolerance.Store(int64(tolerance))
	s.current.Store(EmptyDataset(""))

	return s
}

// Snapshot returns the dataset currently published. It is never nil.
func (s *Store) Snapshot() *Dataset {
	return s.current.Load()
}

// Reload loads the source into a new dataset and publishes it.
//
// Only one reload runs at a time. A concurrent call returns
// ErrReloadInProgress immediately rather than queueing.
func (s *Store) Reload(ctx context.Context) (LoadStats, error) {
	if !s.reload.TryLock() {
		return LoadStats{}, ErrReloadInProgress
	}
	defer s.reload.Unlock()

	s.loading.Store(true)
	defer s.loading.Store(false)

	ds, err := s.load(ctx)

	s.mu.Lock()
	s.lastAttempt = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("sensor reload failed, keeping previous dataset")
		return LoadStats{}, err
	}

	s.current.Store(ds)
	return ds.Stats(), nil
}

func (s *Store) load(ctx context.Context) (*Dataset, error) {
	var src Source
	if s.source != nil {
		var err error
		if src, err = s.source(); err != nil {
			return nil, err
		}
	}
	if c, ok := src.(interface{ Close() }); ok {
		defer c.Close()
	}
	return s.loader.Load(ctx, src)
}

// Matcher joins filenames against one dataset with one normaliser and
// tolerance. A page or annotation that matches many images builds a single
// Matcher so a reload finishing halfway through cannot split its results
// across two datasets.
type Matcher struct {
	dataset    *Dataset
	normalizer Normalizer
	tolerance  time.Duration
}

// Matcher captures the current snapshot, normaliser and tolerance.
func (s *Store) Matcher() Matcher {
	return Matcher{
		dataset:    s.Snapshot(),
		normalizer: s.Normalizer(),
		tolerance:  s.Tolerance(),
	}
}

// Loaded reports whether the captured dataset holds any records.
func (m Matcher) Loaded() bool {
	return m.dataset.Len() > 0
}

// Match normalises an image filename and finds its sensor record. A
// malformed filename is an error; no record within tolerance is
// ok == false with a nil error.
func (m Matcher) Match(name string) (Match, bool, error) {
	q, err := m.normalizer.Parse(name)
	if err != nil {
		return Match{}, false, err
	}

	res, ok := m.dataset.MatchQuery(q, m.tolerance)
	if !ok {
		return Match{QueryTimestamp: q.Timestamp}, false, nil
	}
	return res, true, nil
}

// MatchFilename matches a single filename against the current snapshot.
func (s *Store) MatchFilename(name string) (Match, bool, error) {
	return s.Matcher().Match(name)
}

func (s *Store) Normalizer() Normalizer {
	return *s.normalizer.Load()
}

// SetNormalizer replaces the filename normaliser used by later matches.
func (s *Store) SetNormalizer(n Normalizer) {
	s.normalizer.Store(&n)
}

func (s *Store) Tolerance() time.Duration {
	return time.Duration(s.tolerance.Load())
}

func (s *Store) SetTolerance(d time.Duration) {
	if d <= 0 {
		d = DefaultTolerance
	}
	s.tolerance.Store(int64(d))
}

func (s *Store) Status() Status {
	ds := s.Snapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Loading:     s.loading.Load(),
		Records:     ds.Len(),
		Stats:       ds.Stats(),
		LastAttempt: s.lastAttempt,
		Tolerance:   s.Tolerance().String(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
