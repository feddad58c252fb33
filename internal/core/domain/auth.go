// internal/core/domain/auth.go
package domain

import "fmt"

// SchemeKind identifica la variante de esquema de autenticación.
type SchemeKind string

const (
	// SchemeNone petición sin autenticación
	SchemeNone SchemeKind = "none"

	// SchemeBasic autenticación HTTP Basic
	SchemeBasic SchemeKind = "basic"

	// SchemeDigest challenge/response HTTP Digest (MD5)
	SchemeDigest SchemeKind = "digest"
)

// AuthScheme es la variante etiquetada de credencial por target.
// Cada variante declara explícitamente sus campos requeridos: no hay mapas
// con claves opcionales ni ambigüedad de "missing key".
type AuthScheme struct {
	// Kind variante del esquema
	Kind SchemeKind

	// User usuario; requerido para Basic y Digest
	User string

	// Secret contraseña o secreto; requerido para Basic y Digest
	Secret string
}

// NoneScheme retorna un esquema sin autenticación.
func NoneScheme() AuthScheme {
	return AuthScheme{Kind: SchemeNone}
}

// BasicScheme retorna un esquema HTTP Basic con sus campos requeridos.
func BasicScheme(user, secret string) AuthScheme {
	return AuthScheme{Kind: SchemeBasic, User: user, Secret: secret}
}

// DigestScheme retorna un esquema HTTP Digest con sus campos requeridos.
func DigestScheme(user, secret string) AuthScheme {
	return AuthScheme{Kind: SchemeDigest, User: user, Secret: secret}
}

// Validate verifica que la variante tenga sus campos requeridos.
func (s AuthScheme) Validate() error {
	switch s.Kind {
	case SchemeNone:
		return nil
	case SchemeBasic, SchemeDigest:
		if s.User == "" || s.Secret == "" {
			return fmt.Errorf("%w: scheme %s requires user and secret", ErrMissingCredentials, s.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown auth scheme %q", ErrMissingCredentials, s.Kind)
	}
}

// String retorna la variante sin exponer el secreto.
func (s AuthScheme) String() string {
	if s.Kind == SchemeNone {
		return string(SchemeNone)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.User)
}
