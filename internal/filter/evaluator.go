package filter

import (
	"encoding/json"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Defaults for NewEvaluator.
const (
	DefaultDebounce         = 120 * time.Millisecond
	DefaultCacheCollections = 16
	DefaultCacheEntries     = 64
)

type settings struct {
	debounce    time.Duration
	collections int
	entries     int
	log         *zap.Logger
	after       afterFunc
}

// Option configures an Evaluator.
type Option func(*settings)

// WithDebounce sets the quiet period used by Debounced.
func WithDebounce(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithCacheSize bounds the memo cache: how many record collections are
// tracked, and how many condition sets per collection.
func WithCacheSize(collections, entries int) Option {
	return func(s *settings) {
		if collections > 0 {
			s.collections = collections
		}
		if entries > 0 {
			s.entries = entries
		}
	}
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

func withAfterFunc(fn afterFunc) Option {
	return func(s *settings) {
		s.after = fn
	}
}

// Evaluator runs condition sets in three modes: immediate, memoized and
// debounced. Each owner (a session, a connection, a CLI run) holds its own
// Evaluator; the cache and pending debounce belong to that instance.
type Evaluator[R Fielder] struct {
	cache     *memoCache[R]
	debouncer *Debouncer
	log       *zap.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator[R Fielder](opts ...Option) *Evaluator[R] {
	s := settings{
		debounce:    DefaultDebounce,
		collections: DefaultCacheCollections,
		entries:     DefaultCacheEntries,
		log:         zap.L(),
		after:       realAfterFunc,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Evaluator[R]{
		cache:     newMemoCache[R](s.collections, s.entries),
		debouncer: newDebouncer(s.debounce, s.after),
		log:       s.log.With(zap.String("component", "filter")),
	}
}

// Debounce returns the configured debounce delay.
func (e *Evaluator[R]) Debounce() time.Duration {
	return e.debouncer.Delay()
}

// Immediate evaluates conds against records without caching.
func (e *Evaluator[R]) Immediate(records []R, conds []Condition) []R {
	return Apply(records, conds)
}

// Memoized evaluates conds against the collection, returning the cached
// slice when the same collection was already filtered with an identical
// (by JSON serialization) condition set.
func (e *Evaluator[R]) Memoized(c *Collection[R], conds []Condition) []R {
	if c == nil {
		return nil
	}
	key, err := conditionKey(conds)
	if err != nil {
		e.log.Debug("filter: conditions not serializable, skipping cache", zap.Error(err))
		return Apply(c.records, conds)
	}
	if hit, ok := e.cache.get(c, key); ok {
		return hit
	}
	result := Apply(c.records, conds)
	e.cache.put(c, key, result)
	return result
}

// Debounced schedules a memoized evaluation after the debounce delay. A
// later call before the delay elapses replaces this one, so only the last
// callback in a burst runs. The callback runs on a timer goroutine.
func (e *Evaluator[R]) Debounced(c *Collection[R], conds []Condition, cb func([]R)) {
	conds = slices.Clone(conds)
	e.debouncer.Debounce(func() {
		cb(e.Memoized(c, conds))
	})
}

// Cancel drops any pending debounced evaluation.
func (e *Evaluator[R]) Cancel() {
	e.debouncer.Cancel()
}

// Flush runs a pending debounced evaluation now.
func (e *Evaluator[R]) Flush() bool {
	return e.debouncer.Flush()
}

// Wait blocks until a debounced evaluation already running has returned.
func (e *Evaluator[R]) Wait() {
	e.debouncer.Wait()
}

// Reset clears the memo cache.
func (e *Evaluator[R]) Reset() {
	e.cache.purge()
}

func conditionKey(conds []Condition) (string, error) {
	if len(conds) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(conds)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
