package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/poll"
	"github.com/Dicklesworthstone/sysmon/internal/publish"
	"github.com/Dicklesworthstone/sysmon/internal/sampler"
	"github.com/Dicklesworthstone/sysmon/internal/ui"
)

// primeDelay is how long --json waits between the priming read and the
// real one so cpu figures cover a short interval instead of since boot.
const primeDelay = 250 * time.Millisecond

type viewFlags struct {
	json       bool
	jsonStream bool
}

func (v *viewFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&v.json, "json", false, "print one snapshot as JSON and exit")
	cmd.Flags().BoolVar(&v.jsonStream, "json-stream", false, "stream NDJSON snapshots until interrupted")
}

func newTUICmd(a *app) *cobra.Command {
	var view viewFlags
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Show the live dashboard (NDJSON when stdout is not a terminal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, a, view)
		},
	}
	view.bind(cmd)
	return cmd
}

func runTUI(cmd *cobra.Command, a *app, view viewFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	switch {
	case view.json:
		return printOnce(ctx, a, out)
	case view.jsonStream || !term.IsTerminal(int(os.Stdout.Fd())):
		return streamJSON(ctx, a, out)
	}
	return runDashboard(ctx, a)
}

func printOnce(ctx context.Context, a *app, out io.Writer) error {
	host := sampler.NewHost(a.logger)
	if _, err := host.CurrentLoad(ctx); err != nil {
		return err
	}
	if _, err := host.ProcessList(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(primeDelay):
	}

	snap, err := poll.NewController(host, a.logger).Once(ctx, a.cfg.Poll)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func streamJSON(ctx context.Context, a *app, out io.Writer) error {
	broker := publish.NewBroker(a.logger)
	defer broker.Close()

	enc := json.NewEncoder(out)
	writeErr := make(chan error, 1)
	unsub, err := broker.Subscribe(func(s model.Snapshot) {
		if err := enc.Encode(s); err != nil {
			select {
			case writeErr <- err:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer unsub()

	session, err := poll.NewController(sampler.NewHost(a.logger), a.logger).Start(ctx, broker, a.cfg.Poll)
	if err != nil {
		return err
	}
	defer session.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-session.Done():
		return nil
	case err := <-writeErr:
		return fmt.Errorf("write snapshot: %w", err)
	}
}

func runDashboard(ctx context.Context, a *app) error {
	l := a.dashboardLogger()
	host := sampler.NewHost(l)
	broker := publish.NewBroker(l)

	session, err := poll.NewController(host, l).Start(ctx, broker, a.cfg.Poll)
	if err != nil {
		return err
	}
	err = ui.Run(ctx, broker, ui.Options{
		Title:           "System Monitor",
		Info:            sampler.NewCachedInfo(host),
		Terminator:      host,
		HistoryCapacity: a.cfg.History.Capacity,
	})
	broker.Close()
	session.Stop()
	<-session.Done()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
