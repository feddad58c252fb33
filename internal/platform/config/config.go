// internal/platform/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"fleetops/internal/platform/errors"
)

// Config es la configuración completa de una ejecución.
//
// Precedencia: defaults -> fichero YAML -> variables de entorno -> flags.
// Un flag solo pisa al resto si fue pasado explícitamente en la línea de
// comandos.
type Config struct {
	// App
	Operation    string
	RestartMode  string
	Workers      int
	TimeoutS     int // segundos (0 = sin timeout global)
	PrintVersion bool
	ConfigPath   string

	// Fleet
	ServiceDiscoveryPath string
	LogAccessPath        string
	AllowedGroups        []string
	ServiceName          string

	// Logs (solo fetch-logs). LogDate vacío usa el journal del servicio;
	// una fecha YYYY-MM-DD lee el fichero de log diario del dispositivo.
	LogDate  string
	LogLines int

	// Firmware
	FirmwareImagePath string

	// SSH
	SSH SSH

	// HTTP
	HTTP HTTP

	// Notify
	Notify Notify

	// Outputs
	Outputs Outputs

	// Classify
	Phrases Phrases
}

// SSH credenciales de la cuenta de operaciones de la flota.
type SSH struct {
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	PrivateKeyPath string `yaml:"key_path"`
	Port           string `yaml:"port"`
}

// HTTP credenciales y orden de esquemas del endpoint de gestión.
type HTTP struct {
	User    string   `yaml:"user"`
	Secret  string   `yaml:"secret"`
	Schemes []string `yaml:"schemes"`
	Proxy   string   `yaml:"proxy"`

	// RateLimit peticiones por segundo contra los dispositivos; 0 desactiva
	// el limitador. RateBurst es la ráfaga inicial permitida.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// Notify configuración de los sinks de notificación. Un campo vacío
// desactiva el sink correspondiente.
type Notify struct {
	WebhookURL string   `yaml:"webhook_url"`
	SMTPHost   string   `yaml:"smtp_host"`
	SMTPPort   string   `yaml:"smtp_port"`
	SMTPFrom   string   `yaml:"smtp_from"`
	SMTPTo     []string `yaml:"smtp_to"`
}

// Outputs configuración de presentación.
type Outputs struct {
	// Format formato de salida: console, table o json
	Format string `yaml:"format"`

	NoColor bool   `yaml:"no_color"`
	LogFile string `yaml:"log_file"`
}

// Phrases listas de frases del clasificador. Vacías usan los defaults del
// clasificador.
type Phrases struct {
	Offline []string `yaml:"offline"`
	Errors  []string `yaml:"errors"`
}

// fileConfig es la forma YAML del fichero de configuración.
type fileConfig struct {
	Service       string   `yaml:"service"`
	Workers       int      `yaml:"workers"`
	TimeoutS      int      `yaml:"timeout"`
	AllowedGroups []string `yaml:"allowed_groups"`

	LogDate  string `yaml:"log_date"`
	LogLines int    `yaml:"log_lines"`

	Sources struct {
		ServiceDiscovery string `yaml:"service_discovery"`
		LogAccess        string `yaml:"log_access"`
	} `yaml:"sources"`

	SSH     SSH     `yaml:"ssh"`
	HTTP    HTTP    `yaml:"http"`
	Notify  Notify  `yaml:"notify"`
	Outputs Outputs `yaml:"outputs"`
	Phrases Phrases `yaml:"phrases"`
}

// DefaultConfig retorna una configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Operation:   "status",
		RestartMode: "soft_restart",
		Workers:     20,
		TimeoutS:    300,
		ServiceName: "osm",
		LogLines:    100,
		SSH: SSH{
			User: "pi",
			Port: "22",
		},
		HTTP: HTTP{
			Schemes: []string{"digest", "basic"},
		},
		Outputs: Outputs{
			Format: "console",
		},
	}
}

// Load inicializa la configuración con la precedencia completa.
func Load(args []string) (Config, error) {
	cfg := DefaultConfig()

	fs, flagCfg := buildFlags()
	if err := fs.Parse(args); err != nil {
		return Config{}, errors.Wrapf(errors.ErrInvalidInput, "parse flags: %v", err)
	}

	path := flagCfg.ConfigPath
	if path == "" {
		path = getenv("FLEETOPS_CONFIG", "")
	}
	if path != "" {
		if err := loadFromFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.ConfigPath = path
	}

	loadFromEnv(&cfg)
	applyFlags(&cfg, fs, flagCfg)
	normalize(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// buildFlags registra los flags sobre una configuración sombra; applyFlags
// copia después solo los que fueron pasados explícitamente.
func buildFlags() (*pflag.FlagSet, *Config) {
	flagCfg := DefaultConfig()
	fs := pflag.NewFlagSet("fleetops", pflag.ContinueOnError)

	fs.StringVarP(&flagCfg.Operation, "op", "o", flagCfg.Operation,
		"Operación: status, restart-service, restart-machine, push-firmware, fetch-logs")
	fs.StringVar(&flagCfg.RestartMode, "mode", flagCfg.RestartMode,
		"Modo de restart-machine: soft_restart, hard_restart, full_reboot")
	fs.IntVarP(&flagCfg.Workers, "workers", "w", flagCfg.Workers, "Operaciones concurrentes máximas")
	fs.IntVar(&flagCfg.TimeoutS, "timeout", flagCfg.TimeoutS, "Timeout global del batch en segundos (0 = sin timeout)")
	fs.BoolVar(&flagCfg.PrintVersion, "version", false, "Imprimir versión y salir")
	fs.StringVarP(&flagCfg.ConfigPath, "config", "c", "", "Ruta del fichero de configuración YAML")

	fs.StringVar(&flagCfg.ServiceDiscoveryPath, "sd", flagCfg.ServiceDiscoveryPath,
		"Fichero JSON de service discovery")
	fs.StringVar(&flagCfg.LogAccessPath, "log-access", flagCfg.LogAccessPath,
		"Fichero XML de lognavigator")
	fs.StringSliceVar(&flagCfg.AllowedGroups, "groups", flagCfg.AllowedGroups,
		"Grupos admitidos del inventario (vacío = todos)")
	fs.StringVar(&flagCfg.ServiceName, "service", flagCfg.ServiceName, "Unidad systemd del servicio gestionado")
	fs.StringVar(&flagCfg.FirmwareImagePath, "firmware", flagCfg.FirmwareImagePath,
		"Imagen de firmware a subir (solo push-firmware)")
	fs.StringVar(&flagCfg.LogDate, "log-date", flagCfg.LogDate,
		"Fecha YYYY-MM-DD del fichero de log diario (solo fetch-logs; vacío usa el journal)")
	fs.IntVar(&flagCfg.LogLines, "lines", flagCfg.LogLines, "Líneas de log a recuperar")

	fs.StringVar(&flagCfg.HTTP.Proxy, "proxy", flagCfg.HTTP.Proxy, "Proxy para peticiones HTTP (http, https o socks5)")
	fs.Float64Var(&flagCfg.HTTP.RateLimit, "rate-limit", flagCfg.HTTP.RateLimit,
		"Peticiones HTTP por segundo contra los dispositivos (0 = sin límite)")
	fs.IntVar(&flagCfg.HTTP.RateBurst, "rate-burst", flagCfg.HTTP.RateBurst, "Ráfaga inicial del limitador HTTP")
	fs.StringVar(&flagCfg.Outputs.Format, "format", flagCfg.Outputs.Format, "Formato de salida: console, table o json")
	fs.BoolVar(&flagCfg.Outputs.NoColor, "no-color", flagCfg.Outputs.NoColor, "Desactivar color en consola")
	fs.StringVar(&flagCfg.Outputs.LogFile, "log-file", flagCfg.Outputs.LogFile, "Fichero de log adicional")

	return fs, &flagCfg
}

// applyFlags copia a cfg los flags que el usuario pasó explícitamente.
func applyFlags(cfg *Config, fs *pflag.FlagSet, flagCfg *Config) {
	apply := map[string]func(){
		"op":         func() { cfg.Operation = flagCfg.Operation },
		"mode":       func() { cfg.RestartMode = flagCfg.RestartMode },
		"workers":    func() { cfg.Workers = flagCfg.Workers },
		"timeout":    func() { cfg.TimeoutS = flagCfg.TimeoutS },
		"version":    func() { cfg.PrintVersion = flagCfg.PrintVersion },
		"sd":         func() { cfg.ServiceDiscoveryPath = flagCfg.ServiceDiscoveryPath },
		"log-access": func() { cfg.LogAccessPath = flagCfg.LogAccessPath },
		"groups":     func() { cfg.AllowedGroups = flagCfg.AllowedGroups },
		"service":    func() { cfg.ServiceName = flagCfg.ServiceName },
		"firmware":   func() { cfg.FirmwareImagePath = flagCfg.FirmwareImagePath },
		"log-date":   func() { cfg.LogDate = flagCfg.LogDate },
		"lines":      func() { cfg.LogLines = flagCfg.LogLines },
		"proxy":      func() { cfg.HTTP.Proxy = flagCfg.HTTP.Proxy },
		"rate-limit": func() { cfg.HTTP.RateLimit = flagCfg.HTTP.RateLimit },
		"rate-burst": func() { cfg.HTTP.RateBurst = flagCfg.HTTP.RateBurst },
		"format":     func() { cfg.Outputs.Format = flagCfg.Outputs.Format },
		"no-color":   func() { cfg.Outputs.NoColor = flagCfg.Outputs.NoColor },
		"log-file":   func() { cfg.Outputs.LogFile = flagCfg.Outputs.LogFile },
	}
	fs.Visit(func(f *pflag.Flag) {
		if fn, ok := apply[f.Name]; ok {
			fn()
		}
	})
}

// loadFromFile fusiona el fichero YAML sobre la configuración.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "read config file: %v", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "parse config file %s: %v", path, err)
	}

	if fc.Service != "" {
		cfg.ServiceName = fc.Service
	}
	if fc.Workers > 0 {
		cfg.Workers = fc.Workers
	}
	if fc.TimeoutS > 0 {
		cfg.TimeoutS = fc.TimeoutS
	}
	if len(fc.AllowedGroups) > 0 {
		cfg.AllowedGroups = fc.AllowedGroups
	}
	if fc.Sources.ServiceDiscovery != "" {
		cfg.ServiceDiscoveryPath = fc.Sources.ServiceDiscovery
	}
	if fc.Sources.LogAccess != "" {
		cfg.LogAccessPath = fc.Sources.LogAccess
	}
	if fc.LogDate != "" {
		cfg.LogDate = fc.LogDate
	}
	if fc.LogLines > 0 {
		cfg.LogLines = fc.LogLines
	}

	mergeSSH(&cfg.SSH, fc.SSH)
	mergeHTTP(&cfg.HTTP, fc.HTTP)
	mergeNotify(&cfg.Notify, fc.Notify)
	mergeOutputs(&cfg.Outputs, fc.Outputs)
	if len(fc.Phrases.Offline) > 0 {
		cfg.Phrases.Offline = fc.Phrases.Offline
	}
	if len(fc.Phrases.Errors) > 0 {
		cfg.Phrases.Errors = fc.Phrases.Errors
	}

	return nil
}

func mergeSSH(dst *SSH, src SSH) {
	if src.User != "" {
		dst.User = src.User
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.PrivateKeyPath != "" {
		dst.PrivateKeyPath = src.PrivateKeyPath
	}
	if src.Port != "" {
		dst.Port = src.Port
	}
}

func mergeHTTP(dst *HTTP, src HTTP) {
	if src.User != "" {
		dst.User = src.User
	}
	if src.Secret != "" {
		dst.Secret = src.Secret
	}
	if len(src.Schemes) > 0 {
		dst.Schemes = src.Schemes
	}
	if src.Proxy != "" {
		dst.Proxy = src.Proxy
	}
	if src.RateLimit > 0 {
		dst.RateLimit = src.RateLimit
	}
	if src.RateBurst > 0 {
		dst.RateBurst = src.RateBurst
	}
}

func mergeNotify(dst *Notify, src Notify) {
	if src.WebhookURL != "" {
		dst.WebhookURL = src.WebhookURL
	}
	if src.SMTPHost != "" {
		dst.SMTPHost = src.SMTPHost
	}
	if src.SMTPPort != "" {
		dst.SMTPPort = src.SMTPPort
	}
	if src.SMTPFrom != "" {
		dst.SMTPFrom = src.SMTPFrom
	}
	if len(src.SMTPTo) > 0 {
		dst.SMTPTo = src.SMTPTo
	}
}

func mergeOutputs(dst *Outputs, src Outputs) {
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.NoColor {
		dst.NoColor = true
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}
}

// loadFromEnv carga configuración desde variables de entorno.
func loadFromEnv(cfg *Config) {
	if v := getenv("FLEETOPS_OPERATION", ""); v != "" {
		cfg.Operation = v
	}
	if v := getenv("FLEETOPS_RESTART_MODE", ""); v != "" {
		cfg.RestartMode = v
	}
	if v := getenv("FLEETOPS_WORKERS", ""); v != "" {
		cfg.Workers = parseInt(v, cfg.Workers)
	}
	if v := getenv("FLEETOPS_TIMEOUT", ""); v != "" {
		cfg.TimeoutS = parseInt(v, cfg.TimeoutS)
	}
	if v := getenv("FLEETOPS_SERVICE", ""); v != "" {
		cfg.ServiceName = v
	}
	if v := getenv("FLEETOPS_SD_FILE", ""); v != "" {
		cfg.ServiceDiscoveryPath = v
	}
	if v := getenv("FLEETOPS_LOG_ACCESS_FILE", ""); v != "" {
		cfg.LogAccessPath = v
	}
	if v := getenv("FLEETOPS_GROUPS", ""); v != "" {
		cfg.AllowedGroups = splitList(v)
	}
	if v := getenv("FLEETOPS_LOG_DATE", ""); v != "" {
		cfg.LogDate = v
	}
	if v := getenv("FLEETOPS_LOG_LINES", ""); v != "" {
		cfg.LogLines = parseInt(v, cfg.LogLines)
	}

	if v := getenv("FLEETOPS_SSH_USER", ""); v != "" {
		cfg.SSH.User = v
	}
	if v := getenv("FLEETOPS_SSH_PASSWORD", ""); v != "" {
		cfg.SSH.Password = v
	}
	if v := getenv("FLEETOPS_SSH_KEY", ""); v != "" {
		cfg.SSH.PrivateKeyPath = v
	}
	if v := getenv("FLEETOPS_SSH_PORT", ""); v != "" {
		cfg.SSH.Port = v
	}

	if v := getenv("FLEETOPS_HTTP_USER", ""); v != "" {
		cfg.HTTP.User = v
	}
	if v := getenv("FLEETOPS_HTTP_SECRET", ""); v != "" {
		cfg.HTTP.Secret = v
	}
	if v := getenv("FLEETOPS_HTTP_SCHEMES", ""); v != "" {
		cfg.HTTP.Schemes = splitList(v)
	}
	if v := getenv("FLEETOPS_PROXY_URL", ""); v != "" {
		cfg.HTTP.Proxy = v
	}
	if v := getenv("FLEETOPS_HTTP_RATE", ""); v != "" {
		cfg.HTTP.RateLimit = parseFloat(v, cfg.HTTP.RateLimit)
	}
	if v := getenv("FLEETOPS_HTTP_RATE_BURST", ""); v != "" {
		cfg.HTTP.RateBurst = parseInt(v, cfg.HTTP.RateBurst)
	}

	if v := getenv("FLEETOPS_WEBHOOK_URL", ""); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := getenv("FLEETOPS_OUTPUT_FORMAT", ""); v != "" {
		cfg.Outputs.Format = v
	}
}

func normalize(c *Config) {
	c.Operation = strings.TrimSpace(strings.ToLower(c.Operation))
	c.RestartMode = strings.TrimSpace(strings.ToLower(c.RestartMode))
	c.Outputs.Format = strings.TrimSpace(strings.ToLower(c.Outputs.Format))
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.TimeoutS < 0 {
		c.TimeoutS = 0
	}
	if c.LogLines < 1 {
		c.LogLines = 100
	}
	if c.HTTP.RateLimit < 0 {
		c.HTTP.RateLimit = 0
	}
}

// validate rechaza configuraciones que no pueden ejecutar ningún batch.
// Estos errores son fatales antes de despachar nada.
func validate(c Config) error {
	switch c.Operation {
	case "status", "restart-service", "restart-machine", "push-firmware", "fetch-logs":
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown operation %q", c.Operation)
	}

	switch c.Outputs.Format {
	case "console", "table", "json":
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown output format %q", c.Outputs.Format)
	}

	if c.Operation == "push-firmware" && c.FirmwareImagePath == "" {
		return errors.Wrap(errors.ErrInvalidInput, "push-firmware needs --firmware")
	}

	return nil
}

// Timeout retorna el timeout global como duración (0 = sin timeout).
func (c Config) Timeout() time.Duration {
	if c.TimeoutS <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutS) * time.Second
}

// Helpers

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return def
}

func parseInt(v string, def int) int {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func parseFloat(v string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
