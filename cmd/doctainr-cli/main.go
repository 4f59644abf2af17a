// Command doctainr-cli drives the synchronization engine from a terminal:
// it syncs, runs start/stop actions and prints the resulting store.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

type globalFlags struct {
	host           string
	stopTimeout    time.Duration
	requestTimeout time.Duration
	debug          bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorMsg("%v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "doctainr-cli",
		Short:         "List and control Docker containers, images and volumes",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if g.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&g.host, "docker-host", "", "Docker daemon endpoint (default: DOCKER_HOST or platform socket)")
	root.PersistentFlags().DurationVar(&g.stopTimeout, "stop-timeout", 10*time.Second, "Grace period before a stopping container is killed")
	root.PersistentFlags().DurationVar(&g.requestTimeout, "request-timeout", 30*time.Second, "Timeout for each Docker API call")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")

	root.AddCommand(psCmd(&g))
	root.AddCommand(imagesCmd(&g))
	root.AddCommand(volumesCmd(&g))
	root.AddCommand(actionCmd(&g, "start", "Start one or more stopped containers"))
	root.AddCommand(actionCmd(&g, "stop", "Stop one or more running containers"))
	return root
}
