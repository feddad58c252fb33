// internal/core/domain/errors.go
package domain

import (
	"context"
	"errors"

	platformerrors "fleetops/internal/platform/errors"
)

// Errores de dominio.
var (
	// ErrInvalidTarget target sin dirección o malformado
	ErrInvalidTarget = errors.New("invalid target")

	// ErrMissingCredentials esquema de autenticación sin campos requeridos
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrNoTargets batch sin targets tras cargar y filtrar el registro
	ErrNoTargets = errors.New("no targets in batch")
)

// ErrorKind clasifica el fallo de una operación por target. Todos los kinds
// salvo ConfigError se capturan por target dentro del dispatcher; ConfigError
// es fatal para el batch y se lanza antes de despachar.
type ErrorKind string

const (
	// KindTransport target inalcanzable, timeout o conexión rechazada
	KindTransport ErrorKind = "TransportError"

	// KindAuth todos los esquemas de la lista ordenada fallaron
	KindAuth ErrorKind = "AuthError"

	// KindApplication transporte OK pero el payload reportó código != 0
	KindApplication ErrorKind = "ApplicationError"

	// KindParse challenge o cuerpo de respuesta malformado
	KindParse ErrorKind = "ParseError"

	// KindConfig lista de targets o credenciales inválidas antes de despachar
	KindConfig ErrorKind = "ConfigError"
)

// KindOf mapea un error arbitrario a su ErrorKind. El mapeo es conservador:
// cualquier error no reconocido cuenta como fallo de transporte, que es el
// modo de fallo dominante contra una flota.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrMissingCredentials),
		errors.Is(err, ErrNoTargets),
		platformerrors.IsInvalidInput(err):
		return KindConfig
	case platformerrors.IsUnauthorized(err):
		return KindAuth
	case platformerrors.IsApplicationFailure(err):
		return KindApplication
	case platformerrors.IsInvalidResponse(err):
		return KindParse
	case platformerrors.IsTimeout(err),
		platformerrors.IsConnectionFailed(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransport
	default:
		return KindTransport
	}
}

// IsBatchFatal reporta si el error debe abortar el batch completo en lugar de
// registrarse como resultado fallido de un target.
func IsBatchFatal(err error) bool {
	return KindOf(err) == KindConfig
}
