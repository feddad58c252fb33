package usecases

import (
	"context"
	"strings"

	"fleetops/internal/core/domain"
)

// Step es un paso de una secuencia por target. Los pasos best-effort aportan
// campos extraídos cuando funcionan y se ignoran cuando fallan; un paso
// mandatory que falla aborta la secuencia y marca el target como fallido.
type Step struct {
	// Name nombre del paso para mensajes y logging
	Name string

	// Mandatory si true, el fallo del paso aborta la secuencia
	Mandatory bool

	// Run ejecuta el paso. Los campos retornados se fusionan en el
	// resultado del target aunque un paso posterior falle.
	Run func(ctx context.Context, target domain.Target) (StepResult, error)
}

// StepResult es la salida de un paso.
type StepResult struct {
	// Message resumen legible del paso; el del último paso ejecutado gana
	Message string

	// Fields campos extraídos por el paso
	Fields map[string]string

	// Status clasificación producida por el paso, si la hay
	Status domain.Status
}

// RunSequence ejecuta los pasos en orden estricto sobre un target y fusiona
// sus salidas en un único resultado.
//
// Los campos extraídos por pasos ya completados se conservan siempre, incluso
// cuando un paso mandatory posterior falla: un diagnóstico parcial vale más
// que ninguno.
func RunSequence(ctx context.Context, target domain.Target, steps []Step) domain.OperationResult {
	fields := map[string]string{}
	var messages []string
	var status domain.Status

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			res := domain.FailedResult(target, err)
			res.ExtractedFields = fields
			res.Status = status
			return res
		}

		out, err := step.Run(ctx, target)
		for k, v := range out.Fields {
			fields[k] = v
		}
		if out.Status.State != "" {
			status = out.Status
		}
		if out.Message != "" {
			messages = append(messages, out.Message)
		}

		if err != nil {
			if !step.Mandatory {
				messages = append(messages, step.Name+" skipped: "+err.Error())
				continue
			}
			res := domain.FailedResult(target, err)
			res.ExtractedFields = fields
			res.Status = status
			return res
		}
	}

	res := domain.SucceededResult(target, strings.Join(messages, "; "), fields)
	res.Status = status
	return res
}
