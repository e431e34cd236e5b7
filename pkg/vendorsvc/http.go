package vendorsvc

import (
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/uppir/uppir/pkg/upirerr"
	"github.com/uppir/uppir/pkg/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func encodeMirrorList(list []wire.MirrorInfo) ([]byte, error) {
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, upirerr.Wrap(upirerr.InternalError, err, "failed to encode mirror list")
	}
	return raw, nil
}

// Router builds the vendor's legacy HTTP surface: GET MANIFEST/GET
// MIRRORLIST/MIRRORADVERTISE as plain HTTP routes (for deployments behind
// a load balancer that can't speak the raw framed protocol) plus a
// websocket endpoint pushing live mirror-list updates, mirroring the
// teacher's announce-webui structure.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/manifest", s.handleHTTPManifest).Methods(http.MethodGet)
	r.HandleFunc("/mirrorlist", s.handleHTTPMirrorList).Methods(http.MethodGet)
	r.HandleFunc("/advertise", s.handleHTTPAdvertise).Methods(http.MethodPost)
	r.HandleFunc("/ws/mirrors", s.handleWebSocket)
	return r
}

func (s *Server) handleHTTPManifest(w http.ResponseWriter, r *http.Request) {
	_, raw := s.Manifest()
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (s *Server) handleHTTPMirrorList(w http.ResponseWriter, r *http.Request) {
	list, err := encodeMirrorList(s.HandleMirrorList())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(list)
}

func (s *Server) handleHTTPAdvertise(w http.ResponseWriter, r *http.Request) {
	peerIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peerIP = r.RemoteAddr
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.cfg.AdvertiseSizeCap)+1))
	if err != nil {
		http.Error(w, "Error: failed to read request body", http.StatusBadRequest)
		return
	}

	if err := s.HandleAdvertise(body, peerIP); err != nil {
		http.Error(w, upirerr.WireMessage(err), http.StatusBadRequest)
		return
	}
	w.Write([]byte("OK"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientChan := make(chan []byte, 8)
	s.wsMu.Lock()
	s.wsClients[conn] = clientChan
	s.wsMu.Unlock()
	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, conn)
		s.wsMu.Unlock()
		close(clientChan)
	}()

	// Push the current list immediately so a dashboard doesn't wait for the
	// next advertisement to render anything.
	if initial, err := encodeMirrorList(s.HandleMirrorList()); err == nil {
		conn.WriteMessage(websocket.TextMessage, initial)
	}

	for msg := range clientChan {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) broadcastMirrorList() {
	list, err := encodeMirrorList(s.HandleMirrorList())
	if err != nil {
		return
	}

	s.wsMu.RLock()
	defer s.wsMu.RUnlock()
	for _, clientChan := range s.wsClients {
		select {
		case clientChan <- list:
		default:
		}
	}
}
