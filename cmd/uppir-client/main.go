// Command uppir-client retrieves a file from a replicated upPIR release
// without revealing to any coalition of fewer than k mirrors which file it
// requested (spec §6). Exit codes: 0 success, 1 configuration error, 2
// requested file not in manifest.
package main

import (
	"fmt"
	"os"

	"github.com/uppir/uppir/pkg/config"
	"github.com/uppir/uppir/pkg/upirerr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseClientFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	m, mirrors, err := fetchManifestAndMirrors(cfg.VendorAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if _, err := m.BlockListForFile(cfg.File); err != nil {
		fmt.Fprintf(os.Stderr, "file %q is not in the manifest: %v\n", cfg.File, err)
		if upirerr.Is(err, upirerr.FileNotFound) {
			return 2
		}
		return 1
	}

	data, err := retrieveFile(m, mirrors, cfg.File, cfg.K, cfg.PollInterval, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := os.WriteFile(cfg.Output, data, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log.Infof("retrieved %q (%d bytes) to %s", cfg.File, len(data), cfg.Output)
	return 0
}
