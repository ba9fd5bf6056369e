package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Dicklesworthstone/sysmon/internal/api"
	"github.com/Dicklesworthstone/sysmon/internal/history"
	"github.com/Dicklesworthstone/sysmon/internal/poll"
	"github.com/Dicklesworthstone/sysmon/internal/publish"
	"github.com/Dicklesworthstone/sysmon/internal/sampler"
	"github.com/Dicklesworthstone/sysmon/internal/transport/grpcfeed"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var httpAddr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sample this host and serve the feed over HTTP and gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("http-addr") {
				a.cfg.Server.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				a.cfg.Server.GRPCAddr = grpcAddr
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (empty disables)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (empty disables)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	host := sampler.NewHost(a.logger)
	info := sampler.NewCachedInfo(host)
	broker := publish.NewBroker(a.logger)
	defer broker.Close()

	tracker := history.NewTracker(cfg.History.Capacity)
	unsub, err := broker.Subscribe(tracker.Observe)
	if err != nil {
		return err
	}
	defer unsub()

	session, err := poll.NewController(host, a.logger).Start(ctx, broker, cfg.Poll)
	if err != nil {
		return err
	}
	defer func() {
		session.Stop()
		<-session.Done()
	}()

	var httpLis, grpcLis net.Listener
	if cfg.Server.HTTPAddr != "" {
		if httpLis, err = net.Listen("tcp", cfg.Server.HTTPAddr); err != nil {
			return fmt.Errorf("listen http: %w", err)
		}
	}
	if cfg.Server.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr); err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	var httpSrv *api.Server
	var grpcSrv *grpc.Server
	g, gctx := errgroup.WithContext(ctx)

	if httpLis != nil {
		httpSrv = api.NewServer(cfg.Server.HTTPAddr, api.Deps{
			Broker:     broker,
			History:    tracker,
			Info:       info,
			Terminator: host,
			Session:    session,
		}, a.logger)
		g.Go(func() error { return httpSrv.Serve(httpLis) })
	}
	if grpcLis != nil {
		grpcSrv = grpc.NewServer()
		grpcfeed.NewServer(broker, info, host, a.logger).Register(grpcSrv)
		g.Go(func() error {
			a.logger.Info("starting gRPC server", "addr", grpcLis.Addr().String())
			return grpcSrv.Serve(grpcLis)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-session.Done():
			if ctx.Err() == nil {
				return errors.New("poll session ended unexpectedly")
			}
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		// ends streaming subscribers so both servers can drain
		broker.Close()
		if grpcSrv != nil {
			a.logger.Info("shutting down gRPC server")
			grpcSrv.GracefulStop()
		}
		if httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}
