// internal/core/domain/target.go
package domain

import (
	"fmt"
	"strings"
)

// Target representa un endpoint remoto de la flota (servidor o dispositivo
// embebido) sobre el que se ejecutan operaciones.
type Target struct {
	// ID identificador único dentro de un batch. Si está vacío se usa Address.
	ID string

	// Address dirección de red (IP o host, opcionalmente host:puerto)
	Address string

	// DisplayName nombre legible para reportes (hostname)
	DisplayName string

	// GroupLabel grupo lógico al que pertenece el target (ej: "OSM_CP")
	GroupLabel string

	// Schemes lista ORDENADA de esquemas de autenticación a intentar.
	// El orden lo decide el caller; el negotiator lo respeta estrictamente.
	Schemes []AuthScheme
}

// NewTarget crea un target con identidad derivada de la dirección.
func NewTarget(address, displayName, groupLabel string) Target {
	return Target{
		Address:     address,
		DisplayName: displayName,
		GroupLabel:  groupLabel,
	}
}

// Key retorna la identidad del target: ID si existe, Address en caso contrario.
func (t Target) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Address
}

// Validate verifica que el target sea direccionable.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Address) == "" {
		return fmt.Errorf("%w: target address is empty", ErrInvalidTarget)
	}
	return nil
}

// Name retorna el nombre a mostrar en reportes, con fallback a la dirección.
func (t Target) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Address
}
