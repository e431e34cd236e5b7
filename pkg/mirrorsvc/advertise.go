package mirrorsvc

import (
	"encoding/json"
	"net"
	"time"

	"github.com/uppir/uppir/pkg/wire"
)

// advertiseLoop periodically sends a MIRRORADVERTISE message to the
// configured vendor, the mirror-side counterpart of uppir_mirror.py's
// periodic _send_mirrorinfo.
func (s *Server) advertiseLoop() {
	ticker := time.NewTicker(s.cfg.AdvertiseEvery)
	defer ticker.Stop()

	s.sendAdvertisement()
	for {
		select {
		case <-ticker.C:
			s.sendAdvertisement()
		case <-s.stop:
			return
		}
	}
}

func (s *Server) sendAdvertisement() {
	payload, err := json.Marshal(wire.MirrorInfo{IP: s.cfg.SelfIP, Port: s.cfg.SelfPort})
	if err != nil {
		s.log.Warnf("failed to encode self-advertisement: %v", err)
		return
	}

	conn, err := net.DialTimeout("tcp", s.cfg.VendorAddr, 5*time.Second)
	if err != nil {
		s.log.Warnf("failed to reach vendor at %s: %v", s.cfg.VendorAddr, err)
		return
	}
	defer conn.Close()

	request := append([]byte(wire.VendorMirrorAdvertise), payload...)
	if err := wire.WriteMessage(conn, request); err != nil {
		s.log.Warnf("failed to send advertisement: %v", err)
		return
	}
	resp, err := wire.ReadMessage(conn)
	if err != nil {
		s.log.Warnf("failed to read vendor's advertisement reply: %v", err)
		return
	}
	if string(resp) != "OK" {
		s.log.Warnf("vendor rejected advertisement: %s", resp)
	}
}
