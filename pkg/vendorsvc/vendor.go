// Package vendorsvc implements the vendor daemon (spec §6): it serves the
// manifest and the current mirror list, and accepts mirror advertisements.
// Service structure follows the teacher's webui servers: a mux.Router
// carrying both the legacy raw-socket-equivalent HTTP routes and a
// websocket endpoint that pushes live mirror-list updates to connected
// dashboards.
package vendorsvc

import (
	"net"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/uppir/uppir/pkg/logging"
	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/upirerr"
	"github.com/uppir/uppir/pkg/wire"
)

// Config configures a Server.
type Config struct {
	ManifestPath    string
	AdvertiseSizeCap int
	AdvertiseTTL    time.Duration
	Logger          *logging.Logger
}

type advertisement struct {
	info    wire.MirrorInfo
	addedAt time.Time
}

// Server is the vendor daemon's shared state: the current manifest (which
// fsnotify hot-reloads from disk), the live advertisement table keyed by
// peer IP, a bloom filter used only to cheaply skip re-logging duplicate
// advertisements (it is never reset, so false positives accumulate over
// the server's lifetime), and the set of
// websocket dashboard clients to notify of mirror-list changes.
type Server struct {
	cfg Config
	log *logging.Logger

	mu            sync.RWMutex
	manifestBytes []byte
	manifest      *manifest.Manifest
	ads           map[string]advertisement
	seenBloom     *bloom.BloomFilter

	wsMu      sync.RWMutex
	wsClients map[*websocket.Conn]chan []byte

	purgeMu sync.Mutex
	watcher *fsnotify.Watcher
}

// New constructs a Server, performing the initial manifest load.
func New(cfg Config) (*Server, error) {
	if cfg.AdvertiseSizeCap == 0 {
		cfg.AdvertiseSizeCap = wire.DefaultAdvertiseSizeCap
	}
	if cfg.AdvertiseTTL == 0 {
		cfg.AdvertiseTTL = wire.DefaultAdvertiseTTL
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}

	s := &Server{
		cfg:       cfg,
		log:       log.WithComponent("vendorsvc"),
		ads:       make(map[string]advertisement),
		seenBloom: bloom.NewWithEstimates(10000, 0.01),
		wsClients: make(map[*websocket.Conn]chan []byte),
	}

	if err := s.reloadManifest(); err != nil {
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

	return s, nil
}

// Close stops the manifest watcher.
func (s *Server) Close() error {
	return s.watcher.Close()
}

func (s *Server) watchManifest() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.reloadManifest(); err != nil {
					s.log.Warnf("failed to reload manifest after change: %v", err)
				} else {
					s.log.Info("reloaded manifest from disk")
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

func (s *Server) reloadManifest() error {
	raw, m, err := manifest.LoadFile(s.cfg.ManifestPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.manifestBytes = raw
	s.manifest = m
	s.mu.Unlock()
	return nil
}

// Manifest returns the currently loaded manifest and its raw bytes.
func (s *Server) Manifest() (*manifest.Manifest, []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest, s.manifestBytes
}

// HandleMirrorList purges stale entries and returns the current fresh
// mirror list (spec §6 "lazily purged on GET MIRRORLIST"). The purge
// itself is skipped, not blocked on, if another purge is already in
// flight: a concurrent GET MIRRORLIST just serves the not-yet-purged
// list rather than queuing behind the purge.
func (s *Server) HandleMirrorList() []wire.MirrorInfo {
	if s.purgeMu.TryLock() {
		s.purgeExpired()
		s.purgeMu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]wire.MirrorInfo, 0, len(s.ads))
	for _, ad := range s.ads {
		list = append(list, ad.info)
	}
	return list
}

func (s *Server) purgeExpired() {
	cutoff := time.Now().Add(-s.cfg.AdvertiseTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, ad := range s.ads {
		if ad.addedAt.Before(cutoff) {
			delete(s.ads, ip)
		}
	}
}

// HandleAdvertise validates and records a mirror advertisement from
// peerIP, overwriting any prior entry from the same IP (spec §6).
func (s *Server) HandleAdvertise(raw []byte, peerIP string) error {
	info, err := wire.ParseMirrorAdvertisement(raw, peerIP, s.cfg.AdvertiseSizeCap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ads[peerIP] = advertisement{info: info, addedAt: time.Now()}
	s.mu.Unlock()

	if !s.seenBloom.TestAndAdd([]byte(peerIP)) {
		s.log.Infof("first advertisement seen from %s:%d", info.IP, info.Port)
	}
	s.broadcastMirrorList()
	return nil
}

// ServeTCP accepts connections on ln and serves the vendor wire verbs,
// one goroutine per connection, until ln is closed.
func (s *Server) ServeTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return upirerr.Wrap(upirerr.TransportFailure, err, "vendor listener accept failed")
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	peerIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		peerIP = conn.RemoteAddr().String()
	}

	raw, err := wire.ReadMessage(conn)
	if err != nil {
		s.log.Debugf("vendor connection from %s failed to read request: %v", peerIP, err)
		return
	}

	req := wire.ParseVendorRequest(raw)
	var response []byte

	switch req.Verb {
	case wire.VendorHello:
		response = []byte(wire.VendorHelloReply)
	case wire.VendorGetManifest:
		_, manifestBytes := s.Manifest()
		response = manifestBytes
	case wire.VendorGetMirrorList:
		response, err = encodeMirrorList(s.HandleMirrorList())
		if err != nil {
			s.log.Warnf("failed to encode mirror list: %v", err)
			return
		}
	case wire.VendorMirrorAdvertise:
		if err := s.HandleAdvertise(req.Advertise, peerIP); err != nil {
			response = []byte(upirerr.WireMessage(err))
		} else {
			response = []byte("OK")
		}
	default:
		response = []byte(wire.MirrorInvalidRequestType)
	}

	if err := wire.WriteMessage(conn, response); err != nil {
		s.log.Debugf("failed to write response to %s: %v", peerIP, err)
	}
}
