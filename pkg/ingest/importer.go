package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/greg-hellings/portal/pkg/backend"
)

// Cloner issues a clone request for one repository.
type Cloner interface {
	Clone(ctx context.Context, repoURL, accessToken string) error
}

// Outcome classifies one row's clone request.
type Outcome string

const (
	// OutcomeCloned means the backend answered with a 2xx status.
	OutcomeCloned Outcome = "cloned"
	// OutcomeFailed means the backend answered with any other status.
	OutcomeFailed Outcome = "failed"
	// OutcomeError means the request never produced a response.
	OutcomeError Outcome = "error"
)

// Status is the result of one row.
type Status struct {
	Row     Row
	Outcome Outcome
	Err     error
}

// Line is the human-readable status log entry for the row.
func (s Status) Line() string {
	switch s.Outcome {
	case OutcomeCloned:
		return "Successfully cloned: " + s.Row.RepoURL
	case OutcomeFailed:
		return "Failed to clone: " + s.Row.RepoURL
	default:
		return "Error cloning: " + s.Row.RepoURL
	}
}

// Summary counts outcomes of a run.
type Summary struct {
	Skipped int
	Cloned  int
	Failed  int
	Errored int
}

// Total returns the number of rows a request was issued for.
func (s Summary) Total() int {
	return s.Cloned + s.Failed + s.Errored
}

// Importer clones the valid rows of a CSV one after another.
type Importer struct {
	cloner Cloner
}

// NewImporter creates an Importer backed by cloner.
func NewImporter(cloner Cloner) *Importer {
	return &Importer{cloner: cloner}
}

// Run processes rows in order. Row N+1 is requested only after row N has
// resolved. A failed row never stops the loop; only context cancellation
// does. report is called once per processed row.
func (im *Importer) Run(ctx context.Context, rows []Row, report func(Status)) (Summary, error) {
	var sum Summary
	for _, row := range rows {
		if !row.Valid() {
			sum.Skipped++
			slog.Debug("Skipping CSV row with missing fields", "line", row.Line)
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("import interrupted: %w", err)
		}

		st := Status{Row: row}
		err := im.cloner.Clone(ctx, row.RepoURL, row.AccessToken)
		switch {
		case err == nil:
			st.Outcome = OutcomeCloned
			sum.Cloned++
		case errors.Is(err, backend.ErrUnexpectedStatus):
			st.Outcome = OutcomeFailed
			st.Err = err
			sum.Failed++
		default:
			st.Outcome = OutcomeError
			st.Err = err
			sum.Errored++
		}

		slog.Info("Clone request finished",
			"repoUrl", row.RepoURL,
			"token", RedactToken(row.AccessToken),
			"outcome", st.Outcome,
			"error", st.Err)
		if report != nil {
			report(st)
		}
	}
	return sum, nil
}
