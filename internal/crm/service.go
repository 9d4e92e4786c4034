// Package crm is the prospector service: it loads leads from the store,
// derives their scores and answers filtered views over them.
package crm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/servio-ai/prospector-cli/internal/filter"
	"github.com/servio-ai/prospector-cli/internal/model"
	"github.com/servio-ai/prospector-cli/internal/scorer"
	"github.com/servio-ai/prospector-cli/internal/store"
)

// DefaultSnapshotTTL bounds how long a scored snapshot is reused before the
// store is read again.
const DefaultSnapshotTTL = 30 * time.Second

// Service answers lead queries against a scored in-memory snapshot. The
// snapshot is rebuilt after any mutation made through the service, after
// Invalidate, or once it is older than the TTL.
type Service struct {
	store store.Store
	eval  *filter.Evaluator[model.Lead]
	now   func() time.Time
	ttl   time.Duration
	log   *zap.Logger

	mu     sync.Mutex
	snap   *filter.Collection[model.Lead]
	snapAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEvaluator replaces the default evaluator.
func WithEvaluator(ev *filter.Evaluator[model.Lead]) Option {
	return func(s *Service) { s.eval = ev }
}

// WithClock sets the time source used for scoring.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSnapshotTTL sets how long a snapshot stays fresh. Zero disables reuse.
func WithSnapshotTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// New creates a Service over st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		now:   time.Now,
		ttl:   DefaultSnapshotTTL,
		log:   zap.L().Named("crm"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.eval == nil {
		s.eval = filter.NewEvaluator[model.Lead]()
	}
	return s
}

// Evaluator exposes the service's filter evaluator.
func (s *Service) Evaluator() *filter.Evaluator[model.Lead] {
	return s.eval
}

// Snapshot returns the current scored collection, loading it if stale.
func (s *Service) Snapshot(ctx context.Context) (*filter.Collection[model.Lead], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.snap != nil && s.ttl > 0 && now.Sub(s.snapAt) < s.ttl {
		return s.snap, nil
	}

	leads, err := s.store.ListLeads(ctx, store.LeadFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "crm: load leads")
	}
	s.snap = filter.NewCollection(scorer.Apply(leads, now))
	s.snapAt = now
	s.log.Debug("crm: snapshot loaded", zap.Int("leads", s.snap.Len()))
	return s.snap, nil
}

// Invalidate forces the next query to reload from the store.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}

// Leads returns the scored leads matching every condition, in store order.
func (s *Service) Leads(ctx context.Context, conds []filter.Condition) ([]model.Lead, error) {
	if err := filter.ValidateAll(conds); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.eval.Memoized(snap, conds), nil
}

// Lead returns a single scored lead.
func (s *Service) Lead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	scored := s.score(*l)
	return &scored, nil
}

// CreateLead stores a new lead and returns it scored.
func (s *Service) CreateLead(ctx context.Context, l *model.Lead) (*model.Lead, error) {
	if err := s.store.CreateLead(ctx, l); err != nil {
		return nil, err
	}
	s.Invalidate()
	scored := s.score(*l)
	return &scored, nil
}

// MoveStage moves a lead through the funnel, logging a stage_change
// activity.
func (s *Service) MoveStage(ctx context.Context, id string, stage model.Stage) (*model.Lead, error) {
	l, err := s.store.MoveStage(ctx, id, stage, s.now())
	if err != nil {
		return nil, err
	}
	s.Invalidate()
	s.log.Info("crm: stage moved", zap.String("lead_id", id), zap.String("stage", string(l.Stage)))
	scored := s.score(*l)
	return &scored, nil
}

// LogActivity records a touchpoint against a lead.
func (s *Service) LogActivity(ctx context.Context, leadID, kind, note string) (*model.Activity, error) {
	a := &model.Activity{LeadID: leadID, Kind: kind, Note: note, At: s.now()}
	if err := s.store.AddActivity(ctx, a); err != nil {
		return nil, err
	}
	s.Invalidate()
	return a, nil
}

// SaveFilter validates conds and stores them under name, replacing any
// filter with the same name.
func (s *Service) SaveFilter(ctx context.Context, name string, conds []filter.Condition) (*model.SavedFilter, error) {
	if err := filter.ValidateAll(conds); err != nil {
		return nil, err
	}
	if conds == nil {
		conds = []filter.Condition{}
	}
	raw, err := json.Marshal(conds)
	if err != nil {
		return nil, eris.Wrap(err, "crm: marshal conditions")
	}
	f := &model.SavedFilter{Name: name, Conditions: raw}
	if err := s.store.SaveFilter(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Filters lists the saved filters.
func (s *Service) Filters(ctx context.Context) ([]model.SavedFilter, error) {
	return s.store.ListFilters(ctx)
}

// RunSavedFilter evaluates a stored filter, looked up by ID or name.
func (s *Service) RunSavedFilter(ctx context.Context, idOrName string) ([]model.Lead, error) {
	f, err := s.store.GetFilter(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	conds, err := filter.DecodeConditions(f.Conditions)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: saved filter %s", f.Name)
	}
	return s.Leads(ctx, conds)
}

// Watch evaluates conds against the current snapshot after the evaluator's
// debounce delay. A later call replaces a pending one; only the last
// callback runs.
func (s *Service) Watch(ctx context.Context, conds []filter.Condition, cb func([]model.Lead)) error {
	if err := filter.ValidateAll(conds); err != nil {
		return err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.eval.Debounced(snap, conds, cb)
	return nil
}

// Score computes the derived attributes for an ad-hoc lead.
func (s *Service) Score(l model.Lead) scorer.Result {
	return scorer.Calculate(l, s.now())
}

func (s *Service) score(l model.Lead) model.Lead {
	return scorer.Apply([]model.Lead{l}, s.now())[0]
}
