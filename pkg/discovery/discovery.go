// Package discovery implements UDP multicast peer announcement: a sender
// that periodically advertises this process and a receiver that turns
// incoming Msg datagrams into node.Node sightings posted to the postman.
package discovery

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ringkv/pkg/node"
	"github.com/cuemby/ringkv/pkg/postman"
)

// Msg is the wire datagram exchanged between peers: UTF-8 JSON.
type Msg struct {
	ID     uint64 `json:"id"`
	Addr   string `json:"addr"`
	Port   int    `json:"port"`
	Online bool   `json:"online"`
}

// Config configures one Discovery instance.
type Config struct {
	SelfID            uint64
	ListenPort        int
	MulticastGroup    string
	MulticastPort     int
	AnnounceInterval  time.Duration
}

// Discovery owns the multicast socket and the announce/listen goroutine
// pair. It never touches the node table directly; sightings flow out
// through the postman's Discover channel.
type Discovery struct {
	cfg  Config
	pm   *postman.Postman
	log  zerolog.Logger
	conn *net.UDPConn
}

// New constructs a Discovery bound to cfg; Start performs the actual socket
// setup and spawns the sender/receiver goroutines.
func New(cfg Config, pm *postman.Postman, log zerolog.Logger) *Discovery {
	return &Discovery{cfg: cfg, pm: pm, log: log.With().Str("component", "discovery").Logger()}
}

// Start joins the multicast group and spawns the announce and listen
// loops. It returns once the socket is ready; the loops run until ctx is
// canceled.
func (d *Discovery) Start(ctx context.Context) error {
	groupAddr := &net.UDPAddr{IP: net.ParseIP(d.cfg.MulticastGroup), Port: d.cfg.MulticastPort}

	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return err
	}
	d.conn = conn

	go d.announceLoop(ctx, groupAddr)
	go d.listenLoop(ctx)
	return nil
}

// Close releases the multicast socket.
func (d *Discovery) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *Discovery) announceLoop(ctx context.Context, groupAddr *net.UDPAddr) {
	interval := d.cfg.AnnounceInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	online, _ := json.Marshal(Msg{ID: d.cfg.SelfID, Port: d.cfg.ListenPort, Online: true})
	offline, _ := json.Marshal(Msg{ID: d.cfg.SelfID, Port: d.cfg.ListenPort, Online: false})

	for {
		select {
		case <-ctx.Done():
			d.send(groupAddr, offline)
			d.log.Info().Msg("multicast announce loop shutdown")
			return
		case <-ticker.C:
			d.send(groupAddr, online)
		}
	}
}

func (d *Discovery) send(addr *net.UDPAddr, payload []byte) {
	if _, err := d.conn.WriteToUDP(payload, addr); err != nil {
		d.log.Warn().Err(err).Msg("multicast send failed")
	}
}

func (d *Discovery) listenLoop(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("multicast listen loop shutdown")
			return
		default:
		}

		_ = d.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, src, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			d.log.Warn().Err(err).Msg("multicast read failed")
			continue
		}

		var msg Msg
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			d.log.Warn().Err(err).Msg("malformed discovery datagram, discarding")
			continue
		}

		n2 := node.Node{
			ID:     msg.ID,
			Addr:   src.IP,
			Port:   msg.Port,
			IsSelf: msg.ID == d.cfg.SelfID,
			Online: msg.Online,
		}
		_ = d.pm.Send(postman.Discover, n2)
	}
}
