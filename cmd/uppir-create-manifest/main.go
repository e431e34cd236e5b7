// Command uppir-create-manifest walks a directory of files and writes a
// manifest describing their block layout and per-block hashes (spec §6).
package main

import (
	"fmt"
	"os"

	"github.com/uppir/uppir/pkg/config"
	"github.com/uppir/uppir/pkg/manifest"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseCreateManifestFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	m, err := manifest.CreateManifest(manifest.CreateOptions{
		RootDir:       cfg.RootDir,
		BlockSize:     cfg.BlockSize,
		HashAlgorithm: cfg.HashAlgorithm,
		VendorHost:    cfg.VendorHost,
		VendorPort:    cfg.VendorPort,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	raw, err := manifest.Marshal(m)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := os.WriteFile(cfg.ManifestOut, raw, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Printf("wrote manifest for %d files across %d blocks to %s\n", len(m.Files), m.BlockCount, cfg.ManifestOut)
	return 0
}
