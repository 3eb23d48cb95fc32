package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scancoord/internal/logging"
	"scancoord/internal/model"
)

var ErrAllEnginesFailed = errors.New("all scan engines failed")

// Multi runs several engines against the same file and merges their
// findings in engine order. A failing engine is logged and contributes
// nothing; the scan only fails when every engine failed.
type Multi struct {
	engines []Engine
	limit   int
	log     *zap.SugaredLogger
}

func NewMulti(engines []Engine, limit int, log *zap.SugaredLogger) *Multi {
	if limit < 1 {
		limit = len(engines)
	}
	return &Multi{engines: engines, limit: limit, log: logging.OrNop(log).Named("engine")}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Engines() []Engine { return m.engines }

func (m *Multi) Scan(ctx context.Context, path string, content Content) ([]model.Finding, error) {
	if len(m.engines) == 0 {
		return nil, nil
	}

	results := make([][]model.Finding, len(m.engines))
	errs := make([]error, len(m.engines))

	g, gctx := errgroup.WithContext(ctx)
	if m.limit > 0 {
		g.SetLimit(m.limit)
	}
	for i, e := range m.engines {
		g.Go(func() error {
			findings, err := scanOne(gctx, e, path, content)
			if err != nil {
				m.log.Warnw("engine failed", "engine", e.Name(), "path", path, "error", err)
				errs[i] = err
				return nil
			}
			results[i] = normalize(findings, e.Name())
			return nil
		})
	}
	_ = g.Wait()

	var merged []model.Finding
	failed := 0
	for i := range m.engines {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failed == len(m.engines) {
		return nil, fmt.Errorf("%w: %w", ErrAllEnginesFailed, errors.Join(errs...))
	}
	return merged, nil
}

func scanOne(ctx context.Context, e Engine, path string, content Content) (findings []model.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("engine %s panicked: %v", e.Name(), r)
		}
	}()
	return e.Scan(ctx, path, content)
}
