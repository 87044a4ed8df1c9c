// Copyright (c) 2026 Amun AI AB
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// hypha-server runs a standalone workspace router: WebSocket peers on /ws
// and the HTTP service proxy on everything else.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	hypha "github.com/amun-ai/hypha-go"
	"github.com/amun-ai/hypha-go/cluster"
	"github.com/amun-ai/hypha-go/httpproxy"
	"github.com/amun-ai/hypha-go/transport/websocket"
)

const shutdownGrace = 10 * time.Second

type flags struct {
	configPath string
	port       int
	jwtSecret  string
	serverID   string
	clustered  bool
	redisAddr  string
	verbose    bool
}

func main() {
	var f flags
	cmd := &cobra.Command{
		Use:          "hypha-server",
		Short:        "Workspace router and service registry",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().IntVarP(&f.port, "port", "p", 9527, "TCP port to listen on")
	cmd.Flags().StringVar(&f.jwtSecret, "jwt-secret", "", "HMAC secret for JWT verification and minting")
	cmd.Flags().StringVar(&f.serverID, "server-id", "", "stable server identifier (random when empty)")
	cmd.Flags().BoolVar(&f.clustered, "clustered", false, "enable Redis-backed cluster coordination")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "localhost:6379", "Redis address for cluster coordination")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(f flags) error {
	logger, err := buildLogger(f.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := buildConfig(f)
	if err != nil {
		return err
	}

	opts := []hypha.Option{hypha.WithLogger(logger)}
	var store cluster.Store
	if cfg.Clustered {
		store = cluster.NewRedisStore(cfg.RedisAddr)
		opts = append(opts, hypha.WithClusterStore(store))
	}
	router, err := hypha.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := router.Start(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	inbound := websocket.NewInbound("", router,
		websocket.WithLogger(logger),
		websocket.WithMux(mux))
	if err := inbound.Start(); err != nil {
		return err
	}
	mux.Handle("/", httpproxy.New(router, httpproxy.WithLogger(logger)).Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	var errs error
	errs = multierr.Append(errs, server.Shutdown(ctx))
	errs = multierr.Append(errs, inbound.Stop())
	errs = multierr.Append(errs, router.Stop())
	if store != nil {
		errs = multierr.Append(errs, store.Close())
	}
	return errs
}

func buildConfig(f flags) (hypha.Config, error) {
	var cfg hypha.Config
	if f.configPath != "" {
		loaded, err := hypha.LoadConfig(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if cfg.Port == 0 && cfg.URL == "" {
		cfg.Port = f.port
	}
	if f.jwtSecret != "" {
		cfg.JWTSecret = f.jwtSecret
	}
	if f.serverID != "" {
		cfg.ServerID = f.serverID
	}
	if f.clustered {
		cfg.Clustered = true
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = f.redisAddr
	}
	return cfg, nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
