package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/palisade-db/palisade/internal/core/port"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExplorerService exposes schema discovery. It is read-only metadata
// access through fixed catalog queries; user SQL never flows through it,
// so it sits outside the validation pipeline.
type ExplorerService struct {
	explorer port.SchemaExplorer
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewExplorerService(explorer port.SchemaExplorer, logger *slog.Logger, tracer trace.Tracer) *ExplorerService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &ExplorerService{explorer: explorer, logger: logger, tracer: tracer}
}

func (s *ExplorerService) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	ctx, span := s.tracer.Start(ctx, "ExplorerService.ListSchemas")
	defer span.End()

	schemas, err := s.explorer.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	return schemas, nil
}

func (s *ExplorerService) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	ctx, span := s.tracer.Start(ctx, "ExplorerService.ListTables")
	defer span.End()

	tables, err := s.explorer.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return tables, nil
}

func (s *ExplorerService) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	ctx, span := s.tracer.Start(ctx, "ExplorerService.DescribeTable")
	defer span.End()

	detail, err := s.explorer.DescribeTable(ctx, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", tableName, err)
	}
	return detail, nil
}

func (s *ExplorerService) Discover(ctx context.Context) (*port.DiscoveryResult, error) {
	ctx, span := s.tracer.Start(ctx, "ExplorerService.Discover")
	defer span.End()

	result, err := s.explorer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering schemas: %w", err)
	}
	return result, nil
}
