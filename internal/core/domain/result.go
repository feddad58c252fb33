// internal/core/domain/result.go
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationResult es el resultado de una operación sobre UN target.
// El dispatcher produce exactamente una instancia por target por batch:
// nunca cero, nunca más de una.
type OperationResult struct {
	// TargetID identidad del target (Target.Key())
	TargetID string

	// TargetName nombre legible para reportes
	TargetName string

	// Group grupo lógico del target (Target.GroupLabel)
	Group string

	// Success true si la operación completó
	Success bool

	// ErrorKind taxonomía del fallo; vacío si Success
	ErrorKind ErrorKind

	// Message detalle legible (último error, o resumen de la operación)
	Message string

	// Status estado clasificado del target, si la operación lo produjo
	Status Status

	// ExtractedFields campos estructurados extraídos oportunistamente
	// (versión, uptime, salida de pasos best-effort...)
	ExtractedFields map[string]string

	// Timestamp momento en que se produjo el resultado
	Timestamp time.Time
}

// SucceededResult construye el resultado exitoso de un target.
func SucceededResult(t Target, message string, fields map[string]string) OperationResult {
	if fields == nil {
		fields = map[string]string{}
	}
	return OperationResult{
		TargetID:        t.Key(),
		TargetName:      t.Name(),
		Group:           t.GroupLabel,
		Success:         true,
		Message:         message,
		ExtractedFields: fields,
		Timestamp:       time.Now(),
	}
}

// FailedResult construye el resultado fallido de un target a partir de un error.
func FailedResult(t Target, err error) OperationResult {
	msg := "operation failed"
	if err != nil {
		msg = err.Error()
	}
	return OperationResult{
		TargetID:        t.Key(),
		TargetName:      t.Name(),
		Group:           t.GroupLabel,
		Success:         false,
		ErrorKind:       KindOf(err),
		Message:         msg,
		ExtractedFields: map[string]string{},
		Timestamp:       time.Now(),
	}
}

// BatchReport agrega los resultados de un batch completo.
// Invariante: Succeeded+Failed == Total == len(Results), sin TargetID duplicado.
type BatchReport struct {
	// ID identificador único del batch
	ID string

	// Operation nombre de la operación ejecutada
	Operation string

	// Total número de targets del batch
	Total int

	// Succeeded número de resultados exitosos
	Succeeded int

	// Failed número de resultados fallidos
	Failed int

	// Results un resultado por target, sin orden garantizado
	Results []OperationResult

	// Timestamp momento de cierre del batch
	Timestamp time.Time

	// Duration duración total del batch
	Duration time.Duration
}

// NewBatchReport construye el reporte a partir de los resultados recolectados.
func NewBatchReport(operation string, results []OperationResult, duration time.Duration) BatchReport {
	report := BatchReport{
		ID:        uuid.NewString(),
		Operation: operation,
		Total:     len(results),
		Results:   results,
		Timestamp: time.Now(),
		Duration:  duration,
	}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

// Validate verifica los invariantes del reporte.
func (r BatchReport) Validate() error {
	if r.Succeeded+r.Failed != r.Total || r.Total != len(r.Results) {
		return fmt.Errorf("inconsistent batch report: total=%d succeeded=%d failed=%d results=%d",
			r.Total, r.Succeeded, r.Failed, len(r.Results))
	}
	seen := make(map[string]bool, len(r.Results))
	for _, res := range r.Results {
		if seen[res.TargetID] {
			return fmt.Errorf("duplicate target id in batch report: %s", res.TargetID)
		}
		seen[res.TargetID] = true
	}
	return nil
}

// ReportEnvelope es la forma JSON estable del reporte consumida por la capa
// de presentación y por los sinks de notificación.
type ReportEnvelope struct {
	Status    string            `json:"status"`
	Operation string            `json:"operation"`
	Results   []ResultEnvelope  `json:"results"`
	Summary   SummaryEnvelope   `json:"summary"`
	Timestamp string            `json:"timestamp"`
}

// ResultEnvelope es la forma JSON estable de un resultado por target.
type ResultEnvelope struct {
	ID              string            `json:"id"`
	Name            string            `json:"name,omitempty"`
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	ExtractedFields map[string]string `json:"extractedFields,omitempty"`
	Timestamp       string            `json:"timestamp"`
}

// SummaryEnvelope agrega los contadores del batch.
type SummaryEnvelope struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Envelope retorna la forma JSON estable del reporte.
func (r BatchReport) Envelope() ReportEnvelope {
	env := ReportEnvelope{
		Status:    "success",
		Operation: r.Operation,
		Results:   make([]ResultEnvelope, 0, len(r.Results)),
		Summary: SummaryEnvelope{
			Total:   r.Total,
			Success: r.Succeeded,
			Failed:  r.Failed,
		},
		Timestamp: r.Timestamp.Format(time.RFC3339),
	}
	for _, res := range r.Results {
		status := "success"
		if !res.Success {
			status = string(res.ErrorKind)
		}
		if res.Status.State != "" && res.Status.State != StateUnknown {
			status = res.Status.String()
		}
		env.Results = append(env.Results, ResultEnvelope{
			ID:              res.TargetID,
			Name:            res.TargetName,
			Status:          status,
			Message:         res.Message,
			ExtractedFields: res.ExtractedFields,
			Timestamp:       res.Timestamp.Format(time.RFC3339),
		})
	}
	return env
}
