// Command uppir-mirror serves XOR-selected blocks for one release to
// requestors, and optionally advertises itself to a vendor (spec §6).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/uppir/uppir/pkg/config"
	"github.com/uppir/uppir/pkg/mirrorsvc"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseMirrorFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	backend, err := cfg.ResolveBackend()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	srv, err := mirrorsvc.New(mirrorsvc.Config{
		ManifestPath:   cfg.ManifestPath,
		DataRoot:       cfg.DataRoot,
		Backend:        backend,
		VendorAddr:     cfg.VendorAddr,
		SelfIP:         cfg.SelfIP,
		SelfPort:       cfg.SelfPort,
		AdvertiseEvery: cfg.AdvertiseEvery,
		Logger:         log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer ln.Close()

	log.Infof("mirror listening on %s", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeTCP(ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintln(os.Stderr, err)
		return 1
	case <-sigCh:
		log.Info("shutting down")
		return 0
	}
}
