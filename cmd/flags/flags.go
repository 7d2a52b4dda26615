// Package flags holds the CLI flags and setup helpers shared by the
// node-provisioner binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/relayops/node-provisioner/common"
	"github.com/relayops/node-provisioner/controlplane"
	"github.com/relayops/node-provisioner/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// NewControlPlaneClient builds the control-plane client from the shared
// flags. The password is handed to the client and never logged.
func NewControlPlaneClient(cCtx *cli.Context, logger *slog.Logger) *controlplane.Client {
	return controlplane.NewClient(
		cCtx.String(ControlPlaneURLFlag.Name),
		cCtx.String(ControlPlaneUsernameFlag.Name),
		cCtx.String(ControlPlanePasswordFlag.Name),
		logger,
	)
}

var ControlPlaneURLFlag = &cli.StringFlag{
	Name:    "control-plane-url",
	EnvVars: []string{"CONTROL_PLANE_URL"},
	Usage:   "base URL of the control plane (e.g. https://panel.example.com)",
}
var ControlPlaneUsernameFlag = &cli.StringFlag{
	Name:    "control-plane-username",
	EnvVars: []string{"CONTROL_PLANE_USERNAME"},
	Usage:   "control plane admin username",
}
var ControlPlanePasswordFlag = &cli.StringFlag{
	Name:    "control-plane-password",
	EnvVars: []string{"CONTROL_PLANE_PASSWORD"},
	Usage:   "control plane admin password",
}

var NodeCertFlag = &cli.StringFlag{
	Name:    "node-cert",
	EnvVars: []string{"NODE_CLIENT_CERT"},
	Usage:   "relay agent client certificate (PEM)",
}
var NodeCertFileFlag = &cli.StringFlag{
	Name:  "node-cert-file",
	Usage: "path to the relay agent client certificate, overrides node-cert",
}
var SSHUserFlag = &cli.StringFlag{
	Name:  "ssh-user",
	Value: "root",
	Usage: "user to connect to target hosts as",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var ControlPlaneFlags = []cli.Flag{
	ControlPlaneURLFlag,
	ControlPlaneUsernameFlag,
	ControlPlanePasswordFlag,
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
