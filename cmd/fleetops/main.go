// cmd/fleetops/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetops/internal/adapters/notify"
	"fleetops/internal/adapters/output"
	"fleetops/internal/classify"
	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/core/usecases"
	"fleetops/internal/fleet"
	"fleetops/internal/platform/authx"
	"fleetops/internal/platform/cache"
	"fleetops/internal/platform/config"
	"fleetops/internal/platform/httpclient"
	"fleetops/internal/platform/logx"
	"fleetops/internal/transport/sshx"
)

var (
	// Rellenables con -ldflags en build
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// 1. Load centralized config
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: configuration load failed: %v\n", err)
		os.Exit(2)
	}

	if cfg.PrintVersion {
		fmt.Printf("fleetops %s (%s, %s)\n", version, commit, date)
		return
	}

	// 2. Shared logger
	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: logger setup failed: %v\n", err)
		os.Exit(2)
	}

	logger.Info("fleetops starting",
		"version", version,
		"operation", cfg.Operation,
		"workers", cfg.Workers,
	)

	// 3. Context and signals for clean shutdown
	ctx, cancel := rootContextWithSignals(cfg.Timeout())
	defer cancel()

	// 4. Load the fleet inventory
	registry := fleet.NewRegistry(fleet.Sources{
		ServiceDiscoveryPath: cfg.ServiceDiscoveryPath,
		LogAccessPath:        cfg.LogAccessPath,
		AllowedGroups:        cfg.AllowedGroups,
	}, logger)

	targets, err := registry.Targets()
	if err != nil {
		logger.Err(err, "phase", "inventory")
		os.Exit(2)
	}
	attachSchemes(targets, cfg)

	// 5. Build transports
	runner, err := sshx.New(sshx.Config{
		User:           cfg.SSH.User,
		Password:       cfg.SSH.Password,
		PrivateKeyPath: cfg.SSH.PrivateKeyPath,
		Port:           cfg.SSH.Port,
	}, logger)
	if err != nil {
		logger.Err(err, "phase", "transport")
		os.Exit(2)
	}
	defer runner.Close()

	httpDoer, err := httpclient.New(httpclient.Config{
		ProxyURL:       cfg.HTTP.Proxy,
		RateLimit:      cfg.HTTP.RateLimit,
		RateLimitBurst: cfg.HTTP.RateBurst,
	}, logger)
	if err != nil {
		logger.Err(err, "phase", "transport")
		os.Exit(2)
	}

	// 6. Build the operation
	deps := usecases.Deps{
		Runner:      runner,
		Doer:        authx.New(httpDoer, logger),
		Classifier:  classify.New(cfg.Phrases.Offline, cfg.Phrases.Errors),
		Cache:       cache.NewMemoryCache(),
		Logger:      logger,
		ServiceName: cfg.ServiceName,
	}

	op, err := buildOperation(cfg, deps)
	if err != nil {
		logger.Err(err, "phase", "operation-build")
		os.Exit(2)
	}

	// 7. Dispatch the batch
	dispatcher := usecases.NewDispatcher(cfg.Workers, logger)
	report, err := dispatcher.Run(ctx, op, targets)
	if err != nil {
		logger.Err(err, "phase", "dispatch")
		os.Exit(2)
	}

	if err := report.Validate(); err != nil {
		logger.Err(err, "phase", "report")
		os.Exit(1)
	}

	// 8. Render the report
	if err := writeOutput(cfg, report); err != nil {
		logger.Err(err, "phase", "output")
		os.Exit(1)
	}

	// 9. Best-effort notification fan-out
	notifyAll(ctx, cfg, httpDoer, logger, report)

	logger.Info("fleetops finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed_ms", report.Duration.Milliseconds(),
	)

	if report.Failed > 0 {
		os.Exit(1)
	}
}

// buildLogger crea el logger compartido, con fichero adicional si se pidió.
func buildLogger(cfg config.Config) (logx.Logger, error) {
	if cfg.Outputs.LogFile != "" {
		return logx.NewFile(cfg.Outputs.LogFile)
	}
	if cfg.Outputs.Format == "json" {
		// La salida JSON va a stdout; el ruido de log baja a solo errores.
		return logx.NewSilent(), nil
	}
	return logx.New(), nil
}

// attachSchemes asigna a cada target la lista ordenada de esquemas HTTP
// construida desde la configuración.
func attachSchemes(targets []domain.Target, cfg config.Config) {
	schemes := make([]domain.AuthScheme, 0, len(cfg.HTTP.Schemes))
	for _, name := range cfg.HTTP.Schemes {
		switch name {
		case "none":
			schemes = append(schemes, domain.NoneScheme())
		case "basic":
			schemes = append(schemes, domain.BasicScheme(cfg.HTTP.User, cfg.HTTP.Secret))
		case "digest":
			schemes = append(schemes, domain.DigestScheme(cfg.HTTP.User, cfg.HTTP.Secret))
		}
	}
	for i := range targets {
		targets[i].Schemes = schemes
	}
}

// buildOperation construye la operación seleccionada por configuración.
func buildOperation(cfg config.Config, deps usecases.Deps) (usecases.TargetOperation, error) {
	switch cfg.Operation {
	case "status":
		return usecases.NewStatusCheck(deps), nil
	case "restart-service":
		return usecases.NewServiceRestart(deps), nil
	case "restart-machine":
		return usecases.NewMachineRestart(deps, domain.RestartMode(cfg.RestartMode))
	case "push-firmware":
		image, err := os.ReadFile(cfg.FirmwareImagePath)
		if err != nil {
			return nil, fmt.Errorf("read firmware image: %w", err)
		}
		return usecases.NewFirmwarePush(deps, image)
	case "fetch-logs":
		return usecases.NewLogFetch(deps, cfg.LogDate, cfg.LogLines)
	default:
		return nil, fmt.Errorf("unknown operation %q", cfg.Operation)
	}
}

// writeOutput renderiza el reporte en el formato configurado.
func writeOutput(cfg config.Config, report domain.BatchReport) error {
	switch cfg.Outputs.Format {
	case "json":
		return output.NewJSONWriter(os.Stdout).Write(report)
	case "table":
		return output.NewTableWriter(os.Stdout).Write(report)
	default:
		return output.NewPresenter(cfg.Outputs.NoColor).Write(report)
	}
}

// notifyAll entrega el reporte a los sinks configurados. Un sink caído se
// registra y no altera el resultado del batch.
func notifyAll(ctx context.Context, cfg config.Config, doer ports.HTTPDoer, logger logx.Logger, report domain.BatchReport) {
	var sinks []ports.Notifier

	if cfg.Notify.WebhookURL != "" {
		wh, err := notify.NewWebhook(cfg.Notify.WebhookURL, doer, logger)
		if err != nil {
			logger.Warn("webhook notifier disabled", "error", err.Error())
		} else {
			sinks = append(sinks, wh)
		}
	}
	if cfg.Notify.SMTPHost != "" {
		mail, err := notify.NewSMTP(notify.SMTPConfig{
			Host: cfg.Notify.SMTPHost,
			Port: cfg.Notify.SMTPPort,
			From: cfg.Notify.SMTPFrom,
			To:   cfg.Notify.SMTPTo,
		}, logger)
		if err != nil {
			logger.Warn("smtp notifier disabled", "error", err.Error())
		} else {
			sinks = append(sinks, mail)
		}
	}

	for _, sink := range sinks {
		if err := sink.Notify(ctx, report); err != nil {
			logger.Warn("notification failed", "sink", sink.Name(), "error", err.Error())
		}
		if err := sink.Close(); err != nil {
			logger.Warn("notifier close failed", "sink", sink.Name(), "error", err.Error())
		}
	}
}

// rootContextWithSignals crea el contexto raíz con timeout global y corte por
// SIGINT/SIGTERM.
func rootContextWithSignals(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
