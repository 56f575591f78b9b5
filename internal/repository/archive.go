package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

const (
	jobsTable    = "jobs"
	recordsTable = "records"
)

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var jobColumns = []string{
	"id", "document_id", "filename", "format", "page_count", "size_bytes",
	"state", "reason", "config", "progress", "coverage_gap",
	"submitted_at", "started_at", "finished_at",
}

// Store archives terminal jobs and their records.
type Store struct {
	drv    *entsql.Driver
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// schema is the archive DDL; %[1]s is the dialect's floating point type.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + jobsTable + ` (
	id           TEXT    NOT NULL PRIMARY KEY,
	document_id  TEXT    NOT NULL,
	filename     TEXT    NOT NULL,
	format       TEXT    NOT NULL,
	page_count   INTEGER NOT NULL,
	size_bytes   BIGINT  NOT NULL,
	state        TEXT    NOT NULL,
	reason       TEXT    NOT NULL,
	config       TEXT    NOT NULL,
	progress     TEXT    NOT NULL,
	coverage_gap TEXT,
	submitted_at TEXT    NOT NULL,
	started_at   TEXT,
	finished_at  TEXT
)`,
	`CREATE TABLE IF NOT EXISTS ` + recordsTable + ` (
	job_id      TEXT    NOT NULL,
	ordinal     INTEGER NOT NULL,
	entity_type TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	reason      TEXT    NOT NULL,
	confidence  %[1]s   NOT NULL,
	page_index  INTEGER NOT NULL,
	latitude    %[1]s,
	longitude   %[1]s,
	body        TEXT    NOT NULL,
	PRIMARY KEY (job_id, ordinal)
)`,
	`CREATE INDEX IF NOT EXISTS jobs_submitted_at_idx ON ` + jobsTable + ` (submitted_at)`,
}

// Migrate creates the archive tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	d := s.drv.Dialect()
	float := "REAL"
	if d == dialect.Postgres {
		float = "DOUBLE PRECISION"
	}
	for _, stmt := range schema {
		if strings.Contains(stmt, "%[1]s") {
			stmt = fmt.Sprintf(stmt, float)
		}
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("%w: migrate: %w", common.ErrDatabase, err)
		}
	}
	s.logger.Info("repository.migrate.ok", "driver", d)
	return nil
}

// SaveJob upserts the job row and replaces its records in one transaction.
func (s *Store) SaveJob(ctx context.Context, job entity.Job, records []entity.Record) (err error) {
	start := time.Now()
	d := s.drv.Dialect()

	values, err := jobValues(job)
	if err != nil {
		return err
	}

	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args := entsql.Dialect(d).Insert(jobsTable).
		Columns(jobColumns...).
		Values(values...).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("%w: upsert job: %w", common.ErrDatabase, err)
	}

	query, args = entsql.Dialect(d).Delete(recordsTable).
		Where(entsql.EQ("job_id", job.ID.String())).
		Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("%w: clear records: %w", common.ErrDatabase, err)
	}

	if len(records) > 0 {
		ins := entsql.Dialect(d).Insert(recordsTable).
			Columns("job_id", "ordinal", "entity_type", "status", "reason", "confidence", "page_index", "latitude", "longitude", "body")
		for i, r := range records {
			body, mErr := json.Marshal(r)
			if mErr != nil {
				err = fmt.Errorf("encode record %d: %w", i, mErr)
				return err
			}
			var lat, lon any
			if c := r.NormalizedCoordinate; c != nil {
				lat, lon = c.Lat, c.Lon
			}
			ins.Values(job.ID.String(), i, string(r.EntityType), string(r.Status), r.Reason, r.Confidence, r.Source.PageIndex, lat, lon, string(body))
		}
		query, args = ins.Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("%w: insert records: %w", common.ErrDatabase, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", common.ErrDatabase, err)
	}
	s.logger.Info("repository.job.saved",
		"job_id", job.ID,
		"state", job.State,
		"records", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// GetJob loads an archived job snapshot.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	query, args := entsql.Dialect(s.drv.Dialect()).
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()

	jobs, err := s.queryJobs(ctx, query, args)
	if err != nil {
		return entity.Job{}, err
	}
	if len(jobs) == 0 {
		return entity.Job{}, common.ErrJobNotFound
	}
	return jobs[0], nil
}

// ListJobs returns archived jobs, most recently submitted first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]entity.Job, error) {
	sel := entsql.Dialect(s.drv.Dialect()).
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		OrderBy(entsql.Desc("submitted_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	return s.queryJobs(ctx, query, args)
}

// ListRecords returns a job's records in their original order, optionally
// limited to the given statuses.
func (s *Store) ListRecords(ctx context.Context, jobID uuid.UUID, statuses ...constants.RecordStatus) ([]entity.Record, error) {
	preds := []*entsql.Predicate{entsql.EQ("job_id", jobID.String())}
	if len(statuses) > 0 {
		in := make([]any, len(statuses))
		for i, st := range statuses {
			in[i] = string(st)
		}
		preds = append(preds, entsql.In("status", in...))
	}
	query, args := entsql.Dialect(s.drv.Dialect()).
		Select("body").
		From(entsql.Table(recordsTable)).
		Where(entsql.And(preds...)).
		OrderBy("ordinal").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: list records: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", common.ErrDatabase, err)
		}
		var r entity.Record
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list records: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args []any) ([]entity.Job, error) {
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query jobs: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Job
	for rows.Next() {
		job, err := scanJob(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query jobs: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func jobValues(job entity.Job) ([]any, error) {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	var gap any
	if job.CoverageGap != nil {
		b, err := json.Marshal(job.CoverageGap)
		if err != nil {
			return nil, fmt.Errorf("encode coverage gap: %w", err)
		}
		gap = string(b)
	}
	return []any{
		job.ID.String(),
		job.Document.ID.String(),
		job.Document.Filename,
		job.Document.Format,
		job.Document.PageCount,
		job.Document.SizeBytes,
		string(job.State),
		job.Reason,
		string(cfg),
		string(progress),
		gap,
		job.SubmittedAt.UTC().Format(timeLayout),
		formatTime(job.StartedAt),
		formatTime(job.FinishedAt),
	}, nil
}

func scanJob(rows *entsql.Rows) (entity.Job, error) {
	var (
		id, docID, state, cfg, progress, submitted string
		gap, started, finished                     sql.NullString
		job                                        entity.Job
	)
	err := rows.Scan(&id, &docID, &job.Document.Filename, &job.Document.Format, &job.Document.PageCount,
		&job.Document.SizeBytes, &state, &job.Reason, &cfg, &progress, &gap, &submitted, &started, &finished)
	if err != nil {
		return job, fmt.Errorf("%w: scan job: %w", common.ErrDatabase, err)
	}
	if job.ID, err = uuid.Parse(id); err != nil {
		return job, fmt.Errorf("decode job id: %w", err)
	}
	if job.Document.ID, err = uuid.Parse(docID); err != nil {
		return job, fmt.Errorf("decode document id: %w", err)
	}
	job.State = constants.JobState(state)
	if err := json.Unmarshal([]byte(cfg), &job.Config); err != nil {
		return job, fmt.Errorf("decode config: %w", err)
	}
	if err := json.Unmarshal([]byte(progress), &job.Progress); err != nil {
		return job, fmt.Errorf("decode progress: %w", err)
	}
	if gap.Valid {
		job.CoverageGap = &entity.CoverageGap{}
		if err := json.Unmarshal([]byte(gap.String), job.CoverageGap); err != nil {
			return job, fmt.Errorf("decode coverage gap: %w", err)
		}
	}
	if t := parseTime(sql.NullString{String: submitted, Valid: true}); t != nil {
		job.SubmittedAt = *t
	}
	job.StartedAt = parseTime(started)
	job.FinishedAt = parseTime(finished)
	return job, nil
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
