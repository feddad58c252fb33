// internal/core/domain/status.go
package domain

// State es el estado operativo normalizado de un target.
type State string

const (
	// StateOnline el servicio responde y no muestra indicadores de fallo
	StateOnline State = "online"

	// StateOffline el target es inalcanzable o su servicio está parado
	StateOffline State = "offline"

	// StateError el servicio responde pero sus logs muestran un fallo conocido
	StateError State = "error"

	// StateUnknown no hay información suficiente para clasificar
	StateUnknown State = "unknown"
)

// Status es el resultado de una clasificación. Se produce fresco en cada
// llamada al clasificador y nunca se muta in place.
type Status struct {
	// State estado normalizado
	State State

	// Reason frase de error que disparó StateError; vacío en el resto de estados
	Reason string
}

// Online retorna un status operativo.
func Online() Status { return Status{State: StateOnline} }

// Offline retorna un status de servicio parado o target inalcanzable.
func Offline() Status { return Status{State: StateOffline} }

// ErrorStatus retorna un status de error con la frase que lo disparó.
func ErrorStatus(reason string) Status { return Status{State: StateError, Reason: reason} }

// Unknown retorna un status sin clasificar.
func Unknown() Status { return Status{State: StateUnknown} }

// String retorna el estado, con la razón entre paréntesis si existe.
func (s Status) String() string {
	if s.Reason != "" {
		return string(s.State) + "(" + s.Reason + ")"
	}
	return string(s.State)
}
