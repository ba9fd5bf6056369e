package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/sysmon/internal/publish"
	"github.com/Dicklesworthstone/sysmon/internal/transport/grpcfeed"
	"github.com/Dicklesworthstone/sysmon/internal/ui"
)

func newWatchCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the dashboard for a remote host running sysmon serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.GRPCAddr
			}
			return watch(cmd.Context(), a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address of the remote feed (default: server.grpc_addr)")
	return cmd
}

func watch(ctx context.Context, a *app, addr string) error {
	l := a.dashboardLogger()
	client, err := grpcfeed.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broker := publish.NewBroker(l)
	defer broker.Close()

	feedErr := make(chan error, 1)
	go func() {
		err := client.Subscribe(ctx, broker.Publish)
		feedErr <- err
		cancel()
	}()

	err = ui.Run(ctx, broker, ui.Options{
		Title:           "System Monitor: " + addr,
		Info:            client,
		Terminator:      client,
		HistoryCapacity: a.cfg.History.Capacity,
	})
	cancel()
	if ferr := <-feedErr; ferr != nil && !errors.Is(ferr, context.Canceled) {
		return fmt.Errorf("feed from %s: %w", addr, ferr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
