package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hrms/internal/domain/tax"
)

const JobSettingsWarmup = "tax_settings_warmup"

// Warmer preloads a year's tax configuration.
type Warmer interface {
	Warm(ctx context.Context, year int) error
	CurrentYear() int
}

// RunRecorder persists job runs. A nil recorder keeps runs in the log only.
type RunRecorder interface {
	Begin(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	warmer   Warmer
	recorder RunRecorder
	interval time.Duration
	queue    chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(warmer Warmer, recorder RunRecorder, interval time.Duration) *Service {
	return &Service{
		warmer:   warmer,
		recorder: recorder,
		interval: interval,
		queue:    make(chan job, 16),
	}
}

// Start runs the worker and, with a positive interval, queues a warm-up
// immediately and then once per interval until ctx ends.
func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.interval > 0 {
		s.Enqueue(JobSettingsWarmup, s.WarmYears)
		go s.scheduleWarmups(ctx, s.interval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// WarmYears loads the current year and the next one. The next year is often
// not configured yet, so a configuration error there is reported in the
// details rather than failing the run.
func (s *Service) WarmYears(ctx context.Context) (any, error) {
	current := s.warmer.CurrentYear()
	details := map[string]string{}

	if err := s.warmer.Warm(ctx, current); err != nil {
		details[yearKey(current)] = err.Error()
		return details, err
	}
	details[yearKey(current)] = "warm"

	next := current + 1
	switch err := s.warmer.Warm(ctx, next); {
	case err == nil:
		details[yearKey(next)] = "warm"
	case errors.Is(err, tax.ErrConfiguration):
		details[yearKey(next)] = "not configured"
	default:
		details[yearKey(next)] = err.Error()
		return details, err
	}
	return details, nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.recorder != nil {
		id, err := s.recorder.Begin(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if updErr := s.recorder.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleWarmups(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobSettingsWarmup, s.WarmYears)
		}
	}
}

func yearKey(year int) string {
	return strconv.Itoa(year)
}

// PGRecorder writes job runs to the job_runs table.
type PGRecorder struct {
	DB *pgxpool.Pool
}

func NewPGRecorder(db *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{DB: db}
}

func (r *PGRecorder) Begin(ctx context.Context, jobType string) (string, error) {
	var runID string
	err := r.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, jobType, "running").Scan(&runID)
	return runID, err
}

func (r *PGRecorder) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := r.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
