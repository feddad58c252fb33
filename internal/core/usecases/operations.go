package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fleetops/internal/classify"
	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/platform/cache"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
)

// AuthedDoer emite una petición HTTP negociando la lista ordenada de esquemas
// del target. Lo implementa el negotiator de la plataforma.
type AuthedDoer interface {
	Do(ctx context.Context, req ports.Request, schemes []domain.AuthScheme) (*ports.Response, error)
}

// versionTTL tiempo de validez de la versión cacheada por target. La versión
// solo cambia tras un push de firmware, que limpia la caché.
const versionTTL = 10 * time.Minute

// logTailLimit máximo de caracteres de log incluidos en un resultado.
const logTailLimit = 8000

// defaultLogLines líneas de log recuperadas cuando el caller no pide otras.
const defaultLogLines = 100

// logicLogPath ruta del fichero de log diario en los dispositivos.
const logicLogPath = "/home/pi/osm/logs/logic/%s.log"

// restartSettleDelay espera entre reiniciar la unidad y verificar su estado;
// systemd tarda un momento en reflejar la transición.
var restartSettleDelay = 2 * time.Second

// Deps agrupa las dependencias compartidas por el catálogo de operaciones.
type Deps struct {
	// Runner primitivo de comando remoto (SSH en producción)
	Runner ports.CommandRunner

	// Doer transporte HTTP con negociación de autenticación
	Doer AuthedDoer

	// Classifier clasificador de estado por frases de log
	Classifier *classify.Classifier

	// Cache caché compartida (versiones por target)
	Cache *cache.MemoryCache

	// Logger logger base
	Logger logx.Logger

	// ServiceName nombre de la unidad systemd del servicio gestionado
	ServiceName string

	// FirmwarePath ruta del endpoint HTTP de subida de firmware
	FirmwarePath string

	// ConflictPath ruta del endpoint que apaga la captura antes de flashear.
	// El sensor no puede estar en uso durante la subida de firmware.
	ConflictPath string
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = logx.New()
	}
	if d.Classifier == nil {
		d.Classifier = classify.New(nil, nil)
	}
	if d.Cache == nil {
		d.Cache = cache.NewMemoryCache()
	}
	if d.ServiceName == "" {
		d.ServiceName = "osm"
	}
	if d.FirmwarePath == "" {
		d.FirmwarePath = "/cgi-bin/firmware_upgrade"
	}
	if d.ConflictPath == "" {
		d.ConflictPath = "/cgi-bin/capture_disable"
	}
}

// logFetchCommand comando que recupera las últimas líneas de log del servicio.
func (d *Deps) logFetchCommand(lines int) string {
	return fmt.Sprintf("sudo journalctl -u %s -n %d", d.ServiceName, lines)
}

// ---------------------------------------------------------------------------
// status-check
// ---------------------------------------------------------------------------

// StatusCheck clasifica el estado del servicio de cada target a partir del
// tail de su log, extrayendo la versión de forma oportunista.
type StatusCheck struct {
	deps Deps
}

// NewStatusCheck crea la operación de chequeo de estado.
func NewStatusCheck(deps Deps) *StatusCheck {
	deps.defaults()
	return &StatusCheck{deps: deps}
}

// Name implementa TargetOperation.
func (o *StatusCheck) Name() string { return "status-check" }

// Execute implementa TargetOperation.
func (o *StatusCheck) Execute(ctx context.Context, target domain.Target) domain.OperationResult {
	var logTail string

	steps := []Step{
		{
			Name:      "fetch-log",
			Mandatory: true,
			Run: func(ctx context.Context, t domain.Target) (StepResult, error) {
				out, err := o.deps.Runner.Run(ctx, t, o.deps.logFetchCommand(defaultLogLines))
				if err != nil {
					// Target inalcanzable: offline por definición, sea cual
					// sea el contenido de un log anterior.
					return StepResult{Status: o.deps.Classifier.Classify(false, "")}, err
				}
				if out.ExitCode != 0 {
					return StepResult{}, errors.Wrapf(errors.ErrApplicationFailure,
						"log fetch exited %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr))
				}
				logTail = out.Stdout
				status := o.deps.Classifier.Classify(true, logTail)
				return StepResult{
					Message: "service is " + status.String(),
					Status:  status,
				}, nil
			},
		},
		{
			Name: "extract-version",
			Run: func(ctx context.Context, t domain.Target) (StepResult, error) {
				version, err := o.cachedVersion(t, logTail)
				if err != nil {
					return StepResult{}, err
				}
				return StepResult{Fields: map[string]string{"version": version}}, nil
			},
		},
	}

	return RunSequence(ctx, target, steps)
}

// cachedVersion resuelve la versión del target, sirviéndola de caché dentro
// de la ventana de TTL.
func (o *StatusCheck) cachedVersion(t domain.Target, logTail string) (string, error) {
	v, err := o.deps.Cache.GetOrCompute("version:"+t.Key(), versionTTL, func() (interface{}, error) {
		version, found := o.deps.Classifier.ExtractVersion(logTail)
		if !found {
			return nil, errors.Wrap(errors.ErrInvalidResponse, "no version line in log tail")
		}
		return version, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ---------------------------------------------------------------------------
// restart-service
// ---------------------------------------------------------------------------

// ServiceRestart reinicia la unidad systemd del servicio gestionado y verifica
// su estado después. La verificación es best-effort: un restart que entró pero
// cuyo estado no se pudo leer sigue contando como reinicio correcto.
type ServiceRestart struct {
	deps Deps
}

// NewServiceRestart crea la operación de reinicio de servicio.
func NewServiceRestart(deps Deps) *ServiceRestart {
	deps.defaults()
	return &ServiceRestart{deps: deps}
}

// Name implementa TargetOperation.
func (o *ServiceRestart) Name() string { return "restart-service" }

// Execute implementa TargetOperation.
func (o *ServiceRestart) Execute(ctx context.Context, target domain.Target) domain.OperationResult {
	steps := []Step{
		{
			Name:      "restart",
			Mandatory: true,
			Run: func(ctx context.Context, t domain.Target) (StepResult, error) {
				out, err := o.deps.Runner.Run(ctx, t, "sudo systemctl restart "+o.deps.ServiceName)
				if err != nil {
					return StepResult{}, err
				}
				if out.ExitCode != 0 {
					return StepResult{}, errors.Wrapf(errors.ErrApplicationFailure,
						"restart exited %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr))
				}
				return StepResult{Message: o.deps.ServiceName + " restarted"}, nil
			},
		},
		{
			Name: "verify",
			Run: func(ctx context.Context, t domain.Target) (StepResult, error) {
				if err := settle(ctx, restartSettleDelay); err != nil {
					return StepResult{}, err
				}
				out, err := o.deps.Runner.Run(ctx, t, "systemctl is-active "+o.deps.ServiceName)
				if err != nil {
					return StepResult{}, err
				}
				// is-active sale con código != 0 cuando la unidad no está
				// activa; el estado impreso sigue siendo el diagnóstico.
				state := strings.TrimSpace(out.Stdout)
				if state == "" {
					return StepResult{}, errors.Wrap(errors.ErrInvalidResponse, "no unit state reported")
				}
				return StepResult{
					Message: "unit is " + state,
					Fields:  map[string]string{"service_state": state},
				}, nil
			},
		},
	}

	return RunSequence(ctx, target, steps)
}

// settle espera la duración dada respetando la cancelación del contexto.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// restart-machine
// ---------------------------------------------------------------------------

// MachineRestart ejecuta uno de los modos de reinicio del catálogo
// (soft_restart, hard_restart, full_reboot).
type MachineRestart struct {
	deps Deps
	mode domain.RestartMode
	spec domain.RestartModeSpec
}

// NewMachineRestart crea la operación para el modo dado.
func NewMachineRestart(deps Deps, mode domain.RestartMode) (*MachineRestart, error) {
	deps.defaults()
	spec, ok := domain.RestartModes[mode]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown restart mode %q", mode)
	}
	return &MachineRestart{deps: deps, mode: mode, spec: spec}, nil
}

// Name implementa TargetOperation.
func (o *MachineRestart) Name() string { return "restart-machine/" + string(o.mode) }

// Execute implementa TargetOperation.
func (o *MachineRestart) Execute(ctx context.Context, target domain.Target) domain.OperationResult {
	out, err := o.deps.Runner.Run(ctx, target, o.spec.Command)
	if err != nil {
		// Un reboot corta la sesión SSH antes de que el comando retorne; la
		// conexión caída tras emitir el comando cuenta como reinicio en curso.
		if o.mode == domain.RestartFull && errors.IsConnectionFailed(err) {
			return domain.SucceededResult(target, "reboot issued, connection dropped", nil)
		}
		return domain.FailedResult(target, err)
	}
	if out.ExitCode != 0 {
		return domain.FailedResult(target, errors.Wrapf(errors.ErrApplicationFailure,
			"%s exited %d: %s", o.spec.Name, out.ExitCode, strings.TrimSpace(out.Stderr)))
	}

	return domain.SucceededResult(target, o.spec.Description, nil)
}

// ---------------------------------------------------------------------------
// push-firmware
// ---------------------------------------------------------------------------

// firmwareReply es la respuesta de aplicación del endpoint de firmware.
// code != 0 indica fallo de aplicación aunque el transporte devolviera 200.
type firmwareReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FirmwarePush sube una imagen de firmware al endpoint HTTP del target,
// negociando la autenticación con la lista ordenada de esquemas del target.
// Antes de la subida intenta apagar la captura (best-effort); la subida en sí
// es el paso mandatory.
type FirmwarePush struct {
	deps  Deps
	image []byte
}

// NewFirmwarePush crea la operación con la imagen a subir.
func NewFirmwarePush(deps Deps, image []byte) (*FirmwarePush, error) {
	deps.defaults()
	if len(image) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty firmware image")
	}
	if deps.Doer == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "firmware push needs an HTTP transport")
	}
	return &FirmwarePush{deps: deps, image: image}, nil
}

// Name implementa TargetOperation.
func (o *FirmwarePush) Name() string { return "push-firmware" }

// Execute implementa TargetOperation.
func (o *FirmwarePush) Execute(ctx context.Context, target domain.Target) domain.OperationResult {
	steps := []Step{
		{
			Name: "disable-capture",
			Run: func(ctx context.Context, t domain.Target) (StepResult, error) {
				_, err := o.postAndCheck(ctx, t, o.deps.ConflictPath, nil)
				if err != nil {
					return StepResult{}, err
				}
				return StepResult{Fields: map[string]string{"capture_disabled": "true"}}, nil
			},
		},
		{
			Name:      "upload",
			Mandatory: true,
			Run: func(ctx context.Context, t domain.Target) (StepResult, error) {
				reply, err := o.postAndCheck(ctx, t, o.deps.FirmwarePath, o.image)
				if err != nil {
					return StepResult{}, err
				}

				// La versión cacheada queda obsoleta en cuanto el firmware cambia.
				o.deps.Cache.Delete("version:" + t.Key())

				return StepResult{
					Message: "firmware accepted",
					Fields:  map[string]string{"reply": reply.Message},
				}, nil
			},
		},
	}

	return RunSequence(ctx, target, steps)
}

// postAndCheck emite un POST autenticado al endpoint del target y valida el
// código de aplicación de la respuesta.
func (o *FirmwarePush) postAndCheck(ctx context.Context, target domain.Target, path string, body []byte) (firmwareReply, error) {
	req := ports.Request{
		Method: "POST",
		URL:    "http://" + target.Address + path,
		Header: map[string]string{"Content-Type": "application/octet-stream"},
		Body:   body,
	}

	resp, err := o.deps.Doer.Do(ctx, req, target.Schemes)
	if err != nil {
		return firmwareReply{}, err
	}

	var reply firmwareReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return firmwareReply{}, errors.Wrapf(errors.ErrInvalidResponse, "device reply on %s: %v", path, err)
	}
	if reply.Code != 0 {
		return firmwareReply{}, errors.Wrapf(errors.ErrApplicationFailure,
			"device rejected %s (code %d): %s", path, reply.Code, reply.Message)
	}
	return reply, nil
}

// ---------------------------------------------------------------------------
// fetch-logs
// ---------------------------------------------------------------------------

// LogFetch recupera las últimas líneas de log de cada target. Sin fecha lee el
// journal del servicio; con fecha lee el fichero de log diario del dispositivo.
type LogFetch struct {
	deps  Deps
	date  string
	lines int
}

// NewLogFetch crea la operación de recuperación de logs. Una fecha no vacía
// debe tener formato YYYY-MM-DD: la ruta del fichero remoto se construye con
// ella y una fecha malformada invalidaría el batch entero.
func NewLogFetch(deps Deps, date string, lines int) (*LogFetch, error) {
	deps.defaults()
	if lines <= 0 {
		lines = defaultLogLines
	}
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "log date %q: want YYYY-MM-DD", date)
		}
	}
	return &LogFetch{deps: deps, date: date, lines: lines}, nil
}

// Name implementa TargetOperation.
func (o *LogFetch) Name() string { return "fetch-logs" }

// command retorna el comando remoto según la variante pedida.
func (o *LogFetch) command() string {
	if o.date == "" {
		return o.deps.logFetchCommand(o.lines)
	}
	return fmt.Sprintf("tail -n %d "+logicLogPath, o.lines, o.date)
}

// Execute implementa TargetOperation.
func (o *LogFetch) Execute(ctx context.Context, target domain.Target) domain.OperationResult {
	out, err := o.deps.Runner.Run(ctx, target, o.command())
	if err != nil {
		return domain.FailedResult(target, err)
	}
	if out.ExitCode != 0 {
		return domain.FailedResult(target, errors.Wrapf(errors.ErrApplicationFailure,
			"log fetch exited %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr)))
	}

	tail := out.Stdout
	if len(tail) > logTailLimit {
		tail = tail[len(tail)-logTailLimit:]
	}

	fields := map[string]string{"log_tail": tail}
	if o.date != "" {
		fields["log_file"] = fmt.Sprintf(logicLogPath, o.date)
	}

	return domain.SucceededResult(target, "log tail fetched", fields)
}
