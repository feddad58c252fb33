// internal/core/ports/transport.go
package ports

import (
	"context"

	"fleetops/internal/core/domain"
)

// Request es una petición HTTP contra el endpoint de gestión de un target.
// El cuerpo se lleva como []byte para poder re-emitir la misma petición con
// cabeceras de autenticación distintas (el negotiator digest la envía dos
// veces: sin autenticar y con el header Authorization construido).
type Request struct {
	// Method método HTTP
	Method string

	// URL URL completa contra el target
	URL string

	// Header cabeceras adicionales
	Header map[string]string

	// Body cuerpo de la petición (nil si no hay)
	Body []byte
}

// Response es la respuesta de transporte de una petición.
type Response struct {
	// StatusCode código de estado HTTP
	StatusCode int

	// Header cabeceras de respuesta
	Header map[string]string

	// Body cuerpo completo ya leído
	Body []byte
}

// OK reporta si el transporte respondió 2xx.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Unauthorized reporta si la respuesta es un 401 (challenge de autenticación).
func (r *Response) Unauthorized() bool {
	return r != nil && r.StatusCode == 401
}

// HTTPDoer es el primitivo de transporte HTTP inyectado por el caller.
// El core nunca implementa transporte: solo lo consume.
type HTTPDoer interface {
	// Do envía una petición y retorna la respuesta con el cuerpo leído.
	Do(ctx context.Context, req Request) (*Response, error)
}

// CommandOutput captura la salida de un comando remoto.
type CommandOutput struct {
	// Stdout salida estándar completa
	Stdout string

	// Stderr salida de error completa
	Stderr string

	// ExitCode código de salida del comando
	ExitCode int
}

// CommandRunner es el primitivo "ejecuta un comando remoto" inyectado por el
// caller (en producción, SSH).
type CommandRunner interface {
	// Run ejecuta un comando en el target y captura stdout/stderr/exit code.
	// Un error indica fallo de transporte (conexión, auth SSH, timeout); un
	// comando que termina con exit code != 0 NO es error de transporte.
	Run(ctx context.Context, target domain.Target, command string) (CommandOutput, error)

	// Close libera las conexiones del runner.
	Close() error
}
