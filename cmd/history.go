package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/desertthunder/jukebox/internal/formatter"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/urfave/cli/v3"
)

type submissionView struct {
	ID        string    `json:"id"`
	TrackID   string    `json:"track_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type historyView struct {
	Counts      map[string]int   `json:"counts"`
	Submissions []submissionView `json:"submissions"`
}

// History prints recorded submissions, newest first, with per-status totals.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	status := cmd.String("status")
	if status != "" && !slices.Contains(models.Statuses, status) {
		return fmt.Errorf("%w: status must be one of %v", shared.ErrInvalidArgument, models.Statuses)
	}

	repo, err := r.submissions(ctx)
	if err != nil {
		return err
	}

	list, err := repo.List(ctx, map[string]any{
		"status":   status,
		"track_id": cmd.String("track"),
		"limit":    int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		return err
	}

	report := formatter.Report{Counts: counts, Submissions: list, GeneratedAt: time.Now()}

	var data []byte
	if format := cmd.String("format"); format == "json" {
		data, err = json.MarshalIndent(historyJSON(report), "", "  ")
		data = append(data, '\n')
	} else {
		data, err = formatter.Render(format, report)
	}
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		r.logger.Info("history written", "path", path, "submissions", len(list))
		return r.writePlain("✓ Wrote %d submissions to %s\n", len(list), path)
	}

	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func historyJSON(report formatter.Report) historyView {
	view := historyView{Counts: report.Counts, Submissions: make([]submissionView, 0, len(report.Submissions))}
	for _, s := range report.Submissions {
		view.Submissions = append(view.Submissions, submissionView{
			ID:        s.ID(),
			TrackID:   s.TrackID(),
			Status:    s.Status(),
			Detail:    s.Detail(),
			CreatedAt: s.CreatedAt(),
		})
	}
	return view
}
