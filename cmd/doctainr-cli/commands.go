package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/engine"
	"github.com/doctainr/doctainr/internal/store"
)

func openEngine(ctx context.Context, g *globalFlags) (*engine.Engine, error) {
	gw, err := docker.Connect(ctx, docker.Options{Host: g.host, StopTimeout: g.stopTimeout})
	if err != nil {
		return nil, errors.New(docker.Message(err))
	}
	return engine.New(gw, store.New(), engine.Options{
		RequestTimeout: g.requestTimeout,
		StopTimeout:    g.stopTimeout,
	}), nil
}

// storeErr turns the store's error, if any, into a command error.
func storeErr(snap *store.Snapshot) error {
	if snap.Error == nil {
		return nil
	}
	return errors.New(snap.Error.Message)
}

func listCmd(g *globalFlags, use, short string, sync func(*engine.Engine, context.Context) error, render func(*store.Snapshot) string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer eng.Close()

			sync(eng, cmd.Context())
			snap := eng.Store().Snapshot()
			if err := storeErr(snap); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render(snap))
			return nil
		},
	}
}

func psCmd(g *globalFlags) *cobra.Command {
	return listCmd(g, "ps", "List containers, running and stopped",
		(*engine.Engine).SyncContainers,
		func(s *store.Snapshot) string { return ContainerTable(s.Containers) })
}

func imagesCmd(g *globalFlags) *cobra.Command {
	return listCmd(g, "images", "List tagged images",
		(*engine.Engine).SyncImages,
		func(s *store.Snapshot) string { return ImageTable(s.Images) })
}

func volumesCmd(g *globalFlags) *cobra.Command {
	return listCmd(g, "volumes", "List volumes",
		(*engine.Engine).SyncVolumes,
		func(s *store.Snapshot) string { return VolumeTable(s.Volumes) })
}

// actionCmd runs start or stop on every argument concurrently, reports each
// outcome and prints the container list after the final resync.
func actionCmd(g *globalFlags, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " CONTAINER [CONTAINER...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer eng.Close()

			tasks := make([]*engine.Task, len(args))
			for i, id := range args {
				if verb == "start" {
					tasks[i] = eng.StartContainer(id)
				} else {
					tasks[i] = eng.StopContainer(id)
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for i, task := range tasks {
				if err := task.Wait(cmd.Context()); err != nil {
					failed++
					fmt.Fprintln(out, ErrorMsg("%s", docker.Message(err)))
					continue
				}
				fmt.Fprintln(out, SuccessMsg("%s", pastTense(verb)+" container "+args[i]))
			}

			if err := eng.SyncContainers(cmd.Context()); err == nil {
				fmt.Fprintln(out, ContainerTable(eng.Store().Snapshot().Containers))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d %s requests failed", failed, len(args), verb)
			}
			return nil
		},
	}
}

func pastTense(verb string) string {
	if verb == "start" {
		return "Started"
	}
	return "Stopped"
}
