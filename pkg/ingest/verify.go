package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/greg-hellings/portal/pkg/repository"
)

// Resolver looks a repository URL up on its provider.
type Resolver interface {
	Lookup(ctx context.Context, rawURL, token string) (repository.Ref, *repository.Info, error)
}

// Verification is the provider check of one valid row.
type Verification struct {
	Row  Row
	Ref  repository.Ref
	Info *repository.Info
	Err  error
}

// OK reports whether the repository was found with the row's token.
func (v Verification) OK() bool {
	return v.Err == nil && v.Info != nil
}

// Verify checks every valid row against its provider API before any clone
// request is made. Rows are checked sequentially; a failed lookup is recorded
// and the loop continues.
func Verify(ctx context.Context, rows []Row, resolver Resolver) ([]Verification, error) {
	valid := ValidRows(rows)
	out := make([]Verification, 0, len(valid))
	for _, row := range valid {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("verify interrupted: %w", err)
		}
		ref, info, err := resolver.Lookup(ctx, row.RepoURL, row.AccessToken)
		out = append(out, Verification{Row: row, Ref: ref, Info: info, Err: err})
		slog.Debug("Repository lookup finished",
			"repoUrl", row.RepoURL,
			"token", RedactToken(row.AccessToken),
			"provider", ref.Provider,
			"error", err)
	}
	return out, nil
}
