// Package usecases orquesta las operaciones de flota: despacho concurrente por
// batch, secuencias multi-paso por target y el catálogo de operaciones.
package usecases

import (
	"context"
	"time"

	"fleetops/internal/core/domain"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
	"fleetops/internal/platform/workerpool"
)

// DefaultMaxConcurrency límite de operaciones en vuelo por batch.
const DefaultMaxConcurrency = 20

// TargetOperation es una operación ejecutable sobre un target individual.
// Execute nunca hace panic hacia fuera ni retorna error: todo fallo por target
// se materializa como OperationResult fallido.
type TargetOperation interface {
	// Name retorna el nombre de la operación para reportes y logging
	Name() string

	// Execute ejecuta la operación sobre un target y retorna su resultado
	Execute(ctx context.Context, target domain.Target) domain.OperationResult
}

// Dispatcher ejecuta una operación sobre un batch de targets con concurrencia
// acotada. Garantiza exactamente un resultado por target: los panics se
// recuperan como resultado fallido y una cancelación de contexto produce
// resultados sintéticos para los targets que aún no arrancaron.
type Dispatcher struct {
	maxConcurrency int
	logger         logx.Logger
}

// NewDispatcher crea un dispatcher con el límite de concurrencia dado.
// Un límite <= 0 usa DefaultMaxConcurrency.
func NewDispatcher(maxConcurrency int, logger logx.Logger) *Dispatcher {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = logx.New()
	}
	return &Dispatcher{
		maxConcurrency: maxConcurrency,
		logger:         logger.With("component", "dispatcher"),
	}
}

// Run despacha la operación sobre todos los targets y agrega el reporte.
//
// Los errores de configuración (batch vacío, target inválido) son fatales y se
// retornan antes de despachar nada. Cualquier otro fallo queda registrado como
// resultado fallido del target correspondiente; Run solo retorna error cuando
// el batch entero no puede ejecutarse.
func (d *Dispatcher) Run(ctx context.Context, op TargetOperation, targets []domain.Target) (domain.BatchReport, error) {
	if len(targets) == 0 {
		return domain.BatchReport{}, domain.ErrNoTargets
	}
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return domain.BatchReport{}, err
		}
	}

	d.logger.Info("dispatching batch",
		"operation", op.Name(),
		"targets", len(targets),
		"max_concurrency", d.maxConcurrency,
	)

	start := time.Now()
	results := workerpool.Run(ctx, targets, d.maxConcurrency, func(ctx context.Context, t domain.Target) domain.OperationResult {
		return d.runOne(ctx, op, t)
	})
	duration := time.Since(start)

	report := domain.NewBatchReport(op.Name(), results, duration)
	d.logger.Info("batch finished",
		"operation", op.Name(),
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration_ms", duration.Milliseconds(),
	)

	return report, nil
}

// runOne ejecuta la operación sobre un target con recuperación de panics y
// corte por cancelación.
func (d *Dispatcher) runOne(ctx context.Context, op TargetOperation, t domain.Target) (result domain.OperationResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Err(errors.Errorf("panic in operation: %v", r),
				"operation", op.Name(),
				"target", t.Key(),
			)
			result = domain.FailedResult(t, errors.Errorf("panic in %s: %v", op.Name(), r))
		}
	}()

	// Un batch cancelado no arranca trabajo nuevo: el target recibe un
	// resultado sintético para que el reporte conserve sus invariantes.
	if err := ctx.Err(); err != nil {
		return domain.FailedResult(t, errors.Wrapf(errors.ErrTimeout, "batch canceled before %s started", t.Key()))
	}

	return op.Execute(ctx, t)
}
