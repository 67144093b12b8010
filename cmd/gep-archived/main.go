package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"xdao.co/gep/config"
	"xdao.co/gep/storage/grpccas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, errOut io.Writer) int {
	fs := flag.NewFlagSet("gep-archived", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7443", "listen address")
	configPath := fs.String("config", "", "YAML configuration file (archive and log sections)")
	envPath := fs.String("env", ".env", "dotenv file")
	backend := fs.String("backend", "", "Configured archive backend to write to first")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	for _, b := range cfg.Archive.Backends {
		if b.Type == config.BackendGRPC {
			fmt.Fprintf(errOut, "archive backend %q: grpc backends cannot be served by gep-archived\n", b.Name)
			return 2
		}
	}
	logger := cfg.Log.NewLogger(errOut)

	store, closeFn, err := cfg.Archive.Open(*backend)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer closeFn()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterAssetStoreServer(s, &grpccas.Server{Store: store, Logger: logger})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("gep-archived listening", "addr", lis.Addr().String(), "backends", len(cfg.Archive.Backends))
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
