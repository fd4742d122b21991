package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/palisade-db/palisade/internal/core/domain"
	"github.com/palisade-db/palisade/internal/resilience"
)

// sanitizeError converts internal errors into messages safe to return to
// the client. Policy violations and not-found errors pass through since
// they describe the request; anything else is logged and replaced with a
// generic message so driver and catalog details never leak.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	var violation *domain.ViolationError
	if errors.As(err, &violation) {
		return fmt.Sprintf("%s rejected: %s", op, violation.Error())
	}

	if errors.Is(err, domain.ErrNotFound) {
		return err.Error()
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "database is temporarily unavailable, try again shortly"
	}

	var pgErr *pgconn.PgError
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &pgErr) && pgErr.Code == "57014") {
		return fmt.Sprintf("%s timed out; try a simpler query or narrower filters", op)
	}

	logger.Error("tool call failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("internal error while handling %s (check server logs)", op)
}
