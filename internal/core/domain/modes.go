// internal/core/domain/modes.go
package domain

// RestartMode identifica el modo de reinicio de una máquina de la flota.
type RestartMode string

const (
	// RestartSoft parada y arranque ordenados de los servicios
	RestartSoft RestartMode = "soft_restart"

	// RestartHard parada forzada con pausa antes del arranque
	RestartHard RestartMode = "hard_restart"

	// RestartFull reinicio completo del sistema operativo
	RestartFull RestartMode = "full_reboot"
)

// RestartModeSpec describe un modo de reinicio y el comando remoto que ejecuta.
type RestartModeSpec struct {
	Name        string
	Description string
	Command     string
}

// RestartModes mapa de modos soportados. Los comandos son los del runbook de
// operaciones; cambiarlos aquí cambia lo que se ejecuta en toda la flota.
var RestartModes = map[RestartMode]RestartModeSpec{
	RestartSoft: {
		Name:        "Soft Restart",
		Description: "Graceful restart of services",
		Command:     "cd /home/pi/osm && ./stopallserver.sh && ./startallserver.sh",
	},
	RestartHard: {
		Name:        "Hard Restart",
		Description: "Force restart of services",
		Command:     "cd /home/pi/osm && ./stopallserver.sh && sleep 5 && ./startallserver.sh",
	},
	RestartFull: {
		Name:        "Full Reboot",
		Description: "Complete system reboot",
		Command:     "reboot",
	},
}

// ValidRestartMode reporta si el modo existe en el catálogo.
func ValidRestartMode(mode RestartMode) bool {
	_, ok := RestartModes[mode]
	return ok
}

// GroupCategories agrupa los GroupLabel de la flota en categorías lógicas para
// presentación. Un grupo fuera del mapa cae en "Uncategorized".
var GroupCategories = map[string][]string{
	"OSM Production": {
		"OSM_CP", "OSM_TBP", "OSM_TBR", "OSM_WF", "OSM_NCH", "OSM_DHS",
	},
	"Gaming Platforms": {
		"OSM_MDR", "OSM_LUCKYLINK", "LUCKYLINK_NCH",
	},
	"Regional Sites": {
		"OSM_NP",
	},
}

// CategoryOf retorna la categoría lógica de un grupo.
func CategoryOf(group string) string {
	for category, groups := range GroupCategories {
		for _, g := range groups {
			if g == group {
				return category
			}
		}
	}
	return "Uncategorized"
}
