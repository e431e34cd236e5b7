// Package config defines the flag-based configuration shared by upPIR's
// four command-line binaries, following the plain flag.FlagSet style the
// teacher's cmd/noisefs binary uses rather than a config-file framework.
package config

import (
	"flag"
	"time"

	"github.com/uppir/uppir/pkg/datastore"
	"github.com/uppir/uppir/pkg/logging"
	"github.com/uppir/uppir/pkg/upirerr"
)

// MirrorConfig holds uppir-mirror's flags.
type MirrorConfig struct {
	ManifestPath   string
	DataRoot       string
	ListenAddr     string
	VendorAddr     string
	SelfIP         string
	SelfPort       int
	AdvertiseEvery time.Duration
	Backend        string
	LogLevel       string
	LogFile        string
}

// ParseMirrorFlags parses args (normally os.Args[1:]) into a MirrorConfig.
func ParseMirrorFlags(args []string) (*MirrorConfig, error) {
	fs := flag.NewFlagSet("uppir-mirror", flag.ContinueOnError)
	cfg := &MirrorConfig{}
	fs.StringVar(&cfg.ManifestPath, "manifest", "", "path to the manifest file to serve")
	fs.StringVar(&cfg.DataRoot, "data", "", "root directory of the files the manifest describes")
	fs.StringVar(&cfg.ListenAddr, "listen", ":62293", "address to listen on for mirror requests")
	fs.StringVar(&cfg.VendorAddr, "vendor", "", "vendor address to advertise to (host:port), empty disables advertising")
	fs.StringVar(&cfg.SelfIP, "self-ip", "", "IP this mirror advertises itself as")
	fs.IntVar(&cfg.SelfPort, "self-port", 62293, "port this mirror advertises itself as")
	fs.DurationVar(&cfg.AdvertiseEvery, "advertise-interval", 60*time.Second, "how often to re-advertise to the vendor")
	fs.StringVar(&cfg.Backend, "backend", "fast", "datastore backend: \"reference\" or \"fast\"")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path; empty logs to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ManifestPath == "" || cfg.DataRoot == "" {
		return nil, upirerr.New(upirerr.BadArgument, "-manifest and -data are required")
	}
	return cfg, nil
}

// ResolveBackend maps a backend flag string to a datastore.Backend.
func (c *MirrorConfig) ResolveBackend() (datastore.Backend, error) {
	return parseBackend(c.Backend)
}

func parseBackend(name string) (datastore.Backend, error) {
	switch name {
	case "reference":
		return datastore.Reference, nil
	case "fast", "":
		return datastore.Fast, nil
	default:
		return 0, upirerr.New(upirerr.BadArgument, "unknown datastore backend %q", name)
	}
}

// VendorConfig holds uppir-vendor's flags.
type VendorConfig struct {
	ManifestPath     string
	ListenAddr       string
	HTTPAddr         string
	AdvertiseSizeCap int
	AdvertiseTTL     time.Duration
	LogLevel         string
	LogFile          string
}

// ParseVendorFlags parses args into a VendorConfig.
func ParseVendorFlags(args []string) (*VendorConfig, error) {
	fs := flag.NewFlagSet("uppir-vendor", flag.ContinueOnError)
	cfg := &VendorConfig{}
	fs.StringVar(&cfg.ManifestPath, "manifest", "", "path to the manifest file to serve")
	fs.StringVar(&cfg.ListenAddr, "listen", ":62294", "address to listen on for the framed vendor protocol")
	fs.StringVar(&cfg.HTTPAddr, "http", "", "address to listen on for the legacy HTTP/websocket surface; empty disables it")
	fs.IntVar(&cfg.AdvertiseSizeCap, "advertise-size-cap", 10*1024, "maximum accepted MIRRORADVERTISE payload size in bytes")
	fs.DurationVar(&cfg.AdvertiseTTL, "advertise-ttl", 300*time.Second, "how long a mirror advertisement stays fresh")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path; empty logs to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ManifestPath == "" {
		return nil, upirerr.New(upirerr.BadArgument, "-manifest is required")
	}
	return cfg, nil
}

// ClientConfig holds uppir-client's flags.
type ClientConfig struct {
	VendorAddr   string
	File         string
	Output       string
	K            int
	PollInterval time.Duration
	LogLevel     string
	LogFile      string
}

// ParseClientFlags parses args into a ClientConfig.
func ParseClientFlags(args []string) (*ClientConfig, error) {
	fs := flag.NewFlagSet("uppir-client", flag.ContinueOnError)
	cfg := &ClientConfig{}
	fs.StringVar(&cfg.VendorAddr, "vendor", "", "vendor address (host:port) to fetch the manifest and mirror list from")
	fs.StringVar(&cfg.File, "file", "", "name of the file to retrieve, as listed in the manifest")
	fs.StringVar(&cfg.Output, "output", "", "path to write the retrieved file to")
	fs.IntVar(&cfg.K, "k", 3, "privacy threshold: number of mirrors queried per block")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 100*time.Millisecond, "polling interval while waiting for busy mirror slots")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path; empty logs to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.VendorAddr == "" || cfg.File == "" || cfg.Output == "" {
		return nil, upirerr.New(upirerr.BadArgument, "-vendor, -file, and -output are required")
	}
	return cfg, nil
}

// CreateManifestConfig holds uppir-create-manifest's flags.
type CreateManifestConfig struct {
	RootDir       string
	ManifestOut   string
	BlockSize     int
	HashAlgorithm string
	VendorHost    string
	VendorPort    int
}

// ParseCreateManifestFlags parses args into a CreateManifestConfig.
func ParseCreateManifestFlags(args []string) (*CreateManifestConfig, error) {
	fs := flag.NewFlagSet("uppir-create-manifest", flag.ContinueOnError)
	cfg := &CreateManifestConfig{}
	fs.StringVar(&cfg.RootDir, "root", "", "root directory of files to publish")
	fs.StringVar(&cfg.ManifestOut, "out", "manifest.json", "path to write the generated manifest to")
	fs.IntVar(&cfg.BlockSize, "block-size", 4096, "datastore block size in bytes")
	fs.StringVar(&cfg.HashAlgorithm, "hash-algorithm", "sha256-hex", "hash algorithm: md5/sha1/sha224/sha256/sha384/sha512, each with -hex or -raw")
	fs.StringVar(&cfg.VendorHost, "vendor-host", "", "vendor host clients should contact for this release")
	fs.IntVar(&cfg.VendorPort, "vendor-port", 62294, "vendor port clients should contact for this release")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.RootDir == "" || cfg.VendorHost == "" {
		return nil, upirerr.New(upirerr.BadArgument, "-root and -vendor-host are required")
	}
	return cfg, nil
}

// NewLogger builds a logging.Logger from a level name and optional log file.
func NewLogger(levelName, logFile string) (*logging.Logger, error) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, upirerr.Wrap(upirerr.BadArgument, err, "invalid -log-level %q", levelName)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	if logFile != "" {
		output, err := logging.OpenFileOutput(logFile)
		if err != nil {
			return nil, upirerr.Wrap(upirerr.InternalError, err, "failed to open log file %q", logFile)
		}
		cfg.Output = output
	}
	return logging.New(cfg), nil
}
