package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/relayops/node-provisioner/cmd/flags"
	"github.com/relayops/node-provisioner/common"
	"github.com/relayops/node-provisioner/geoip"
	"github.com/relayops/node-provisioner/interfaces"
	"github.com/relayops/node-provisioner/nodeops"
	"github.com/relayops/node-provisioner/provision"
	"github.com/relayops/node-provisioner/workflow"
)

var flagYes *cli.BoolFlag = &cli.BoolFlag{
	Name:  "yes",
	Usage: "skip the delete confirmation prompt",
}

func main() {
	app := &cli.App{
		Name:           "nodectl",
		Usage:          "Manage relay nodes from the command line",
		DefaultCommand: "nodes",
		Flags: append([]cli.Flag{flags.LogDebugFlag},
			flags.ControlPlaneFlags...),
		Commands: []*cli.Command{
			{
				Name:        "nodes",
				Usage:       "List registered nodes",
				Description: "Fetches and prints the current node list from the control plane.",
				Action: func(cCtx *cli.Context) error {
					ops, _ := buildServices(cCtx)
					nodes, err := ops.List(context.Background())
					if err != nil {
						return err
					}

					if len(nodes) == 0 {
						fmt.Println("No nodes registered.")
						return nil
					}
					for _, node := range nodes {
						fmt.Printf("%d\t%s\t%s\tport=%d api_port=%d\t%s\n",
							node.ID, node.Name, node.Address, node.Port, node.APIPort, node.Status)
					}
					return nil
				},
			},
			{
				Name:      "inspect",
				Usage:     "Show one node in detail",
				ArgsUsage: "<node-id>",
				Action: func(cCtx *cli.Context) error {
					id, err := nodeIDArg(cCtx)
					if err != nil {
						return err
					}

					ops, _ := buildServices(cCtx)
					node, err := ops.Inspect(context.Background(), id)
					if err != nil {
						return err
					}

					fmt.Printf("ID:       %d\n", node.ID)
					fmt.Printf("Name:     %s\n", node.Name)
					fmt.Printf("Address:  %s\n", node.Address)
					fmt.Printf("Port:     %d\n", node.Port)
					fmt.Printf("API port: %d\n", node.APIPort)
					fmt.Printf("Status:   %s\n", node.Status)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a node, with confirmation",
				ArgsUsage: "<node-id>",
				Flags:     []cli.Flag{flagYes},
				Action: func(cCtx *cli.Context) error {
					id, err := nodeIDArg(cCtx)
					if err != nil {
						return err
					}

					ops, _ := buildServices(cCtx)
					ctx := context.Background()

					node, err := ops.Inspect(ctx, id)
					if err != nil {
						return err
					}

					if !cCtx.Bool(flagYes.Name) {
						fmt.Printf("Delete node %q (%s)? [y/N]: ", node.Name, node.Address)
						scanner := bufio.NewScanner(os.Stdin)
						if !scanner.Scan() || !strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
							fmt.Println("Deletion cancelled.")
							return nil
						}
					}

					deleted, err := ops.Delete(ctx, id)
					if err != nil {
						return err
					}

					fmt.Printf("Deleted node %q (%s).\n", deleted.Name, deleted.Address)
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "Show fleet usage statistics",
				Action: func(cCtx *cli.Context) error {
					ops, _ := buildServices(cCtx)
					stats, err := ops.Stats(context.Background())
					if err != nil {
						return err
					}

					fmt.Printf("Total nodes: %d (active %d, inactive %d)\n",
						stats.Total, stats.Active, stats.Inactive)
					for _, country := range stats.Countries {
						fmt.Printf("  %s: %d\n", country.Country, country.Nodes)
					}
					return nil
				},
			},
			{
				Name:        "add",
				Usage:       "Provision a new node interactively",
				Description: "Walks through host, password and port selection, then provisions the host and registers the node. Type 'cancel' to abort before setup starts.",
				Flags:       []cli.Flag{flags.NodeCertFlag, flags.SSHUserFlag},
				Action:      runAdd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func buildLogger(cCtx *cli.Context) *slog.Logger {
	return common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(flags.LogDebugFlag.Name),
		Service: "nodectl",
		Version: common.Version,
	})
}

func buildServices(cCtx *cli.Context) (*nodeops.Service, *slog.Logger) {
	logger := buildLogger(cCtx)
	controlPlane := flags.NewControlPlaneClient(cCtx, logger)
	return nodeops.NewService(controlPlane, geoip.NewResolver(), logger), logger
}

func nodeIDArg(cCtx *cli.Context) (int64, error) {
	if cCtx.Args().Len() != 1 {
		return 0, fmt.Errorf("expected exactly one node id argument")
	}

	id, err := strconv.ParseInt(cCtx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", cCtx.Args().First())
	}
	return id, nil
}

// runAdd drives the interactive node-creation workflow over stdin/stdout.
func runAdd(cCtx *cli.Context) error {
	logger := buildLogger(cCtx)
	controlPlane := flags.NewControlPlaneClient(cCtx, logger)

	provisioner := provision.NewNodeProvisioner(
		cCtx.String(flags.NodeCertFlag.Name),
		cCtx.String(flags.SSHUserFlag.Name),
		logger,
	)
	provisioner.Progress = func(stage string) {
		fmt.Println(stage)
	}

	wf := workflow.NewManager(provisioner, controlPlane, geoip.NewResolver(), logger)
	wf.SetNotifier(func(_, message string) {
		fmt.Println(message)
	})

	const sessionID = "cli"
	for _, message := range wf.Start(sessionID) {
		fmt.Println(message)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		state, active := wf.State(sessionID)
		if !active {
			return nil
		}

		if state == interfaces.StateExecuting {
			// Provisioning runs in the background; wait for it to finish.
			time.Sleep(500 * time.Millisecond)
			continue
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			_, _ = wf.Handle(sessionID, workflow.Event{Kind: workflow.EventCancel})
			fmt.Println()
			return nil
		}

		text := scanner.Text()
		ev := workflow.Event{Kind: workflow.EventInput, Text: text}
		if strings.EqualFold(strings.TrimSpace(text), "cancel") {
			ev = workflow.Event{Kind: workflow.EventCancel}
		}

		messages, err := wf.Handle(sessionID, ev)
		if err != nil {
			return err
		}
		for _, message := range messages {
			fmt.Println(message)
		}
	}
}
