// Package query drives the per-window C-FIND loop against an open
// association and accumulates normalized records.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
	"github.com/otcheredev/pacs-study-toolkit/internal/normalize"
	"github.com/otcheredev/pacs-study-toolkit/pkg/dimse"
)

// Finder issues one study-level query and returns its matches.
// *dimse.Association satisfies it.
type Finder interface {
	CFind(ctx context.Context, query dimse.StudyQuery) ([]*dimse.Dataset, error)
}

// Result holds the outcome of a run. Records are ordered: archive
// response order within each window, windows chronological.
type Result struct {
	Records        models.ResultSet
	Windows        int
	WindowFailures int
}

// Executor runs a sequence of monthly query windows over a single
// association. One association, strictly sequential windows: archives
// serialize per-association request handling and response order must
// stay deterministic.
type Executor struct {
	finder Finder
}

// NewExecutor creates an executor over an open association.
func NewExecutor(finder Finder) *Executor {
	return &Executor{finder: finder}
}

// Run partitions [from, to] into monthly windows and queries each in
// order. A window that fails is retried once, then skipped and counted;
// the run only aborts when the association itself is lost. Cancellation
// is honored at window boundaries; a window in flight runs to
// completion or timeout.
func (e *Executor) Run(ctx context.Context, from, to time.Time) (*Result, error) {
	windows := MonthlyWindows(from, to)
	result := &Result{Windows: len(windows)}

	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		matches, err := e.queryWindow(ctx, window)
		if err != nil {
			log.Warn().
				Err(err).
				Str("window", window.DateRange()).
				Msg("Query window failed, retrying")

			matches, err = e.queryWindow(ctx, window)
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				if dimse.IsConnectionError(err) {
					return result, fmt.Errorf("association lost on window %s: %w", window.DateRange(), err)
				}
				result.WindowFailures++
				log.Warn().
					Err(err).
					Str("window", window.DateRange()).
					Msg("Query window failed after retry, skipping")
				continue
			}
		}

		for _, match := range matches {
			result.Records = append(result.Records, normalize.Normalize(rawMatch(match)))
		}

		log.Info().
			Int("window", i+1).
			Int("num_windows", len(windows)).
			Str("study_date", window.DateRange()).
			Int("num_results", len(matches)).
			Msg("Query window completed")
	}

	return result, nil
}

func (e *Executor) queryWindow(ctx context.Context, window Window) ([]*dimse.Dataset, error) {
	return e.finder.CFind(ctx, dimse.StudyQuery{
		StudyDate:  window.DateRange(),
		ReturnKeys: models.QueryTags,
	})
}

// rawMatch renders a response dataset as the flat decorated form the
// normalizer consumes. Tags the archive did not return stay absent.
func rawMatch(ds *dimse.Dataset) models.RawMatch {
	match := make(models.RawMatch, len(models.QueryTags))
	for _, t := range models.QueryTags {
		if e, ok := ds.Get(t); ok {
			match[models.TagLabel(t)] = e.String()
		}
	}
	return match
}
