// Command uppir-vendor serves a release's manifest and live mirror list,
// and accepts mirror advertisements (spec §6). When -http is set it also
// exposes the legacy HTTP surface and a websocket dashboard feed.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/uppir/uppir/pkg/config"
	"github.com/uppir/uppir/pkg/vendorsvc"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseVendorFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	srv, err := vendorsvc.New(vendorsvc.Config{
		ManifestPath:     cfg.ManifestPath,
		AdvertiseSizeCap: cfg.AdvertiseSizeCap,
		AdvertiseTTL:     cfg.AdvertiseTTL,
		Logger:           log,
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

	log.Infof("vendor listening on %s", cfg.ListenAddr)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ServeTCP(ln) }()

	if cfg.HTTPAddr != "" {
		log.Infof("vendor HTTP surface listening on %s", cfg.HTTPAddr)
		go func() { errCh <- http.ListenAndServe(cfg.HTTPAddr, srv.Router()) }()
	}

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
