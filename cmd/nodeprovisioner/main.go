package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/relayops/node-provisioner/cmd/flags"
	"github.com/relayops/node-provisioner/geoip"
	"github.com/relayops/node-provisioner/httpserver"
	"github.com/relayops/node-provisioner/nodeops"
	"github.com/relayops/node-provisioner/provision"
	"github.com/relayops/node-provisioner/workflow"
)

var serviceFlags []cli.Flag = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the operator API",
	},
	flags.NodeCertFlag,
	flags.NodeCertFileFlag,
	flags.SSHUserFlag,
}, append(flags.ControlPlaneFlags, flags.CommonFlags...)...)

func main() {
	app := &cli.App{
		Name:  "nodeprovisioner",
		Usage: "Provision relay nodes and keep the control plane in sync",
		Flags: serviceFlags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			certificate := cCtx.String(flags.NodeCertFlag.Name)
			certificateFile := cCtx.String(flags.NodeCertFileFlag.Name)
			sshUser := cCtx.String(flags.SSHUserFlag.Name)

			logger := flags.SetupLogger(cCtx)

			if cCtx.String(flags.ControlPlaneURLFlag.Name) == "" ||
				cCtx.String(flags.ControlPlaneUsernameFlag.Name) == "" ||
				cCtx.String(flags.ControlPlanePasswordFlag.Name) == "" {
				logger.Error("control-plane-url, control-plane-username and control-plane-password are required")
				return cli.Exit("missing control plane configuration", 1)
			}

			if certificateFile != "" {
				certData, err := os.ReadFile(certificateFile)
				if err != nil {
					logger.Error("Failed to read certificate file", "file", certificateFile, "err", err)
					return err
				}
				certificate = string(certData)
			}
			if certificate == "" {
				logger.Warn("No client certificate configured, node setup will fail until one is provided")
			}

			controlPlane := flags.NewControlPlaneClient(cCtx, logger)
			geo := geoip.NewResolver()

			provisioner := provision.NewNodeProvisioner(certificate, sshUser, logger)
			provisioner.Progress = func(stage string) {
				logger.Info("Provisioning progress", "stage", stage)
			}

			wf := workflow.NewManager(provisioner, controlPlane, geo, logger)
			ops := nodeops.NewService(controlPlane, geo, logger)

			handler := httpserver.NewHandler(wf, ops, logger)
			wf.SetNotifier(handler.Notify)

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
