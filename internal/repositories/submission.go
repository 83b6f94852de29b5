package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
)

// ErrSubmissionNotFound is returned by [SubmissionRepository.Get] for unknown IDs.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionRepository implements models.Repository[*models.Submission] for the submission history.
//
// It also satisfies services.Recorder so the API client can log every add attempt.
type SubmissionRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Submission] = (*SubmissionRepository)(nil)

// NewSubmissionRepository creates a new SubmissionRepository with the given database connection
func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new [models.Submission] with a generated ID and sequence
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "submissions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO submissions (id, sequence, track_id, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query, id, sequence, s.TrackID(), s.Status(), s.Detail(), s.CreatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	s.SetID(id)
	return nil
}

// Record stores the outcome of one add attempt.
func (r *SubmissionRepository) Record(ctx context.Context, trackID, status, detail string) error {
	return r.Create(ctx, models.NewSubmission(trackID, status, detail))
}

// Get retrieves a submission by ID
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*models.Submission, error) {
	query := `
		SELECT id, track_id, status, detail, created_at
		FROM submissions
		WHERE id = ?
	`

	s, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	return s, err
}

// List retrieves submissions newest first.
//
// Supported criteria: "track_id" (string), "status" (string) and "limit" (int).
func (r *SubmissionRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Submission, error) {
	query := `
		SELECT id, track_id, status, detail, created_at
		FROM submissions
		WHERE 1 = 1
	`

	args := []any{}

	if trackID, ok := criteria["track_id"].(string); ok && trackID != "" {
		query += " AND track_id = ?"
		args = append(args, trackID)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*models.Submission
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

// CountByStatus returns the number of submissions per status.
func (r *SubmissionRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM submissions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(models.Statuses))
	for _, status := range models.Statuses {
		counts[status] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SubmissionRepository) scan(row scanner) (*models.Submission, error) {
	var (
		id, trackID, status, detail string
		createdAt                   time.Time
	)
	if err := row.Scan(&id, &trackID, &status, &detail, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	return models.RestoreSubmission(id, trackID, status, detail, createdAt), nil
}
