// Package diagnosis runs submissions through the analysis pipeline, stores
// them and rebuilds reports from what was stored.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
	"github.com/digipath/maturity-diagnosis/internal/database"
	"github.com/digipath/maturity-diagnosis/internal/monitoring"
)

// ErrStore marks a failure of the record store, as opposed to a missing
// record or a rejected submission.
var ErrStore = errors.New("record store failure")

// Store is the record store used by the service.
type Store interface {
	SaveDiagnosis(ctx context.Context, d database.Diagnosis, retain int) (*database.Diagnosis, error)
	Find(ctx context.Context, id int64, ownerID string) (*database.Diagnosis, error)
	ListRecent(ctx context.Context, ownerID string, limit int) ([]database.Diagnosis, error)
}

// Pipeline analyzes a set of raw answers.
type Pipeline interface {
	Analyze(ctx context.Context, answers []analysis.RawAnswer) (*analysis.Result, error)
}

// Metrics counts service outcomes.
type Metrics interface {
	IncrementDiagnosisSubmitted()
	IncrementReportBuilt()
}

// Config controls retention and history size.
type Config struct {
	// Retain is the number of diagnoses kept per owner.
	Retain int
	// HistoryLimit caps the history listing.
	HistoryLimit int
}

// DefaultConfig keeps the three most recent diagnoses.
func DefaultConfig() Config {
	return Config{Retain: 3, HistoryLimit: 3}
}

// Service implements submission, history and report retrieval.
type Service struct {
	store    Store
	pipeline Pipeline
	kb       Knowledge
	cfg      Config
	locks    *ownerLocks
	logger   *monitoring.Logger
	metrics  Metrics
	now      func() time.Time
}

// NewService wires the service. metrics may be nil.
func NewService(store Store, pipeline Pipeline, kb Knowledge, cfg Config, logger *monitoring.Logger, metrics Metrics) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Service{
		store:    store,
		pipeline: pipeline,
		kb:       kb,
		cfg:      cfg,
		locks:    newOwnerLocks(),
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and analyzes the answers, then stores the diagnosis
// with all 20 attribution rows in one transaction, pruning the owner's
// older diagnoses so that at most Retain remain.
func (s *Service) Submit(ctx context.Context, ownerID string, answers []analysis.RawAnswer) (*Summary, error) {
	start := time.Now()
	if err := ValidateAnswers(answers); err != nil {
		return nil, err
	}

	res, err := s.pipeline.Analyze(ctx, answers)
	if err != nil {
		return nil, fmt.Errorf("analyze diagnosis: %w", err)
	}

	record := buildRecord(ownerID, s.now(), answers, res)

	unlock := s.locks.lock(ownerID)
	saved, err := s.store.SaveDiagnosis(ctx, record, s.cfg.Retain)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: save diagnosis: %w", ErrStore, err)
	}

	if s.metrics != nil {
		s.metrics.IncrementDiagnosisSubmitted()
	}
	s.logger.DiagnosisLogger(saved.ID, ownerID, saved.Tier, len(res.Weaknesses), time.Since(start))

	summary := summarize(saved)
	return &summary, nil
}

func buildRecord(ownerID string, now time.Time, answers []analysis.RawAnswer, res *analysis.Result) database.Diagnosis {
	keyDrivers := make(map[int]bool, len(res.Weaknesses))
	for _, w := range res.Weaknesses {
		keyDrivers[w.QuestionID] = true
	}

	d := database.Diagnosis{
		OwnerID:              ownerID,
		CreatedAt:            now,
		Tier:                 string(res.Prediction.Tier),
		DigitalCapability:    res.DigitalCapability,
		LeadershipCapability: res.LeadershipCapability,
		Answers:              make([]database.Answer, 0, len(answers)),
		Attributions:         make([]database.AttributionRow, 0, len(res.Attributions)),
	}
	for _, a := range answers {
		d.Answers = append(d.Answers, database.Answer{
			QuestionID: a.QuestionID,
			RawValue:   a.RawValue,
			Normalized: res.Features.Get(a.QuestionID),
		})
	}
	for _, a := range res.Attributions {
		d.Attributions = append(d.Attributions, database.AttributionRow{
			QuestionID:   a.QuestionID,
			Contribution: a.Contribution,
			IsKeyDriver:  keyDrivers[a.QuestionID],
		})
	}
	return d
}

// History lists the owner's most recent diagnoses, newest first.
func (s *Service) History(ctx context.Context, ownerID string) ([]Summary, error) {
	list, err := s.store.ListRecent(ctx, ownerID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list diagnoses: %w", ErrStore, err)
	}

	out := make([]Summary, len(list))
	for i := range list {
		out[i] = summarize(&list[i])
	}
	return out, nil
}

// Report rebuilds the report of one of the owner's diagnoses. A diagnosis
// of another owner, or one without attribution rows, is not found.
func (s *Service) Report(ctx context.Context, ownerID string, id int64) (*Report, error) {
	start := time.Now()
	d, err := s.store.Find(ctx, id, ownerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find diagnosis %d: %w", ErrStore, id, err)
	}
	if len(d.Attributions) == 0 {
		return nil, fmt.Errorf("%w: diagnosis %d has no attribution data", database.ErrNotFound, id)
	}

	current, err := s.pipeline.Analyze(ctx, d.RawAnswers())
	if err != nil {
		return nil, fmt.Errorf("reanalyze diagnosis %d: %w", id, err)
	}

	report := AssembleReport(d, current, s.kb)

	if s.metrics != nil {
		s.metrics.IncrementReportBuilt()
	}
	s.logger.ReportLogger(id, ownerID, len(report.Weaknesses), len(report.Strengths), time.Since(start))
	return report, nil
}
