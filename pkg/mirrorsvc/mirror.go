// Package mirrorsvc implements the mirror daemon (spec §6): it serves
// XORBLOCK/HELLO over the framed wire protocol, reloads its manifest and
// datastore when the manifest file changes on disk (changes to the data
// files alone are not watched), and periodically advertises
// itself to its configured vendor.
package mirrorsvc

import (
	"net"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/uppir/uppir/pkg/bitstring"
	"github.com/uppir/uppir/pkg/datastore"
	"github.com/uppir/uppir/pkg/logging"
	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/upirerr"
	"github.com/uppir/uppir/pkg/wire"
)

// Config configures a Server.
type Config struct {
	ManifestPath string
	DataRoot     string
	Backend      datastore.Backend
	VendorAddr   string // host:port of the vendor to advertise to
	SelfIP       string
	SelfPort     int
	AdvertiseEvery time.Duration
	Logger       *logging.Logger
}

// Server is the mirror daemon's shared state: the currently loaded
// manifest and the datastore it is populated into. Both are swapped
// together under mu whenever fsnotify observes a manifest change, so a
// request never sees a datastore that doesn't match the manifest it
// checks bitstring length against.
type Server struct {
	cfg Config
	log *logging.Logger

	mu       sync.RWMutex
	manifest *manifest.Manifest
	store    datastore.Store

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// New constructs a Server and performs the initial manifest/datastore load.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	if cfg.AdvertiseEvery == 0 {
		cfg.AdvertiseEvery = 60 * time.Second
	}

	s := &Server{cfg: cfg, log: log.WithComponent("mirrorsvc"), stop: make(chan struct{})}
	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, upirerr.Wrap(upirerr.InternalError, err, "failed to create manifest watcher")
	}
	if err := watcher.Add(cfg.ManifestPath); err != nil {
		watcher.Close()
		return nil, upirerr.Wrap(upirerr.InternalError, err, "failed to watch manifest file %q", cfg.ManifestPath)
	}
	s.watcher = watcher
	go s.watchManifest()

	if cfg.VendorAddr != "" {
		go s.advertiseLoop()
	}

	return s, nil
}

// Close stops the manifest watcher and advertisement loop.
func (s *Server) Close() error {
	close(s.stop)
	return s.watcher.Close()
}

func (s *Server) reload() error {
	_, m, err := manifest.LoadFile(s.cfg.ManifestPath)
	if err != nil {
		return err
	}

	store, err := datastore.New(s.cfg.Backend, m.BlockSize, m.BlockCount)
	if err != nil {
		return err
	}
	if err := manifest.PopulateDatastore(m, store, s.cfg.DataRoot); err != nil {
		return err
	}

	s.mu.Lock()
	s.manifest = m
	s.store = store
	s.mu.Unlock()
	return nil
}

func (s *Server) watchManifest() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.reload(); err != nil {
					s.log.Warnf("failed to reload manifest and datastore: %v", err)
				} else {
					s.log.Info("reloaded manifest and datastore from disk")
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("manifest watcher error: %v", err)
		}
	}
}

// ServeTCP accepts connections on ln and serves the mirror wire protocol,
// one goroutine per connection, until ln is closed.
func (s *Server) ServeTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return upirerr.Wrap(upirerr.TransportFailure, err, "mirror listener accept failed")
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	raw, err := wire.ReadMessage(conn)
	if err != nil {
		s.log.Debugf("failed to read request from %s: %v", conn.RemoteAddr(), err)
		return
	}

	s.mu.RLock()
	m, store := s.manifest, s.store
	s.mu.RUnlock()

	req := wire.ParseMirrorRequest(raw)
	expectedLen := bitstring.LengthFor(m.BlockCount)

	response, err := wire.HandleMirrorRequest(req, expectedLen, store.XORSelected)
	if err != nil {
		s.log.Warnf("failed to compute response for %s: %v", conn.RemoteAddr(), err)
		return
	}
	if string(response) == wire.MirrorInvalidRequestLen {
		s.log.Infof("UPPIR %s invalid request with length %d", conn.RemoteAddr(), len(req.Bitstring))
	}

	if err := wire.WriteMessage(conn, response); err != nil {
		s.log.Debugf("failed to write response to %s: %v", conn.RemoteAddr(), err)
	}
}
