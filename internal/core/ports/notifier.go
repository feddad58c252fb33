// internal/core/ports/notifier.go
package ports

import (
	"context"

	"fleetops/internal/core/domain"
)

// Notifier es el port para los sinks de notificación (webhook, SMTP...).
// El core emite el BatchReport; el formato y la entrega del mensaje legible
// son responsabilidad de cada sink.
type Notifier interface {
	// Notify entrega el reporte de un batch terminado
	Notify(ctx context.Context, report domain.BatchReport) error

	// Name retorna el nombre del sink para logging
	Name() string

	// Close cierra el notifier y libera recursos
	Close() error
}
