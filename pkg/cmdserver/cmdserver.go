// Package cmdserver implements the TCP command server: the listener and
// per-connection dialogue that turns inbound frames into executed or
// proposed commands.
package cmdserver

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/cuemby/ringkv/pkg/command"
	"github.com/cuemby/ringkv/pkg/connection"
	"github.com/cuemby/ringkv/pkg/db"
	"github.com/cuemby/ringkv/pkg/frame"
	"github.com/cuemby/ringkv/pkg/metrics"
	"github.com/cuemby/ringkv/pkg/postman"
	"github.com/cuemby/ringkv/pkg/raft"
)

// Config configures the listener.
type Config struct {
	ListenAddr string
	ListenPort int
}

// Server accepts peer and client connections and dispatches their commands.
type Server struct {
	cfg Config
	pm  *postman.Postman
	db  *db.Database
	log zerolog.Logger
}

// New constructs a Server bound to cfg, executing read commands against
// database and routing Raft envelopes and write proposals through pm.
func New(cfg Config, pm *postman.Postman, database *db.Database, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, pm: pm, db: database, log: log.With().Str("component", "cmdserver").Logger()}
}

// Run binds the listener and accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ListenAddr, s.cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cmdserver: listen %s: %w", addr, err)
	}
	s.log.Info().Str("addr", addr).Msg("command server listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("command server shutdown")
				return nil
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handleConn(ctx, raw)
	}
}

func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	conn := connection.New(raw)
	conn.OnFrameError = func(reason string) {
		metrics.FrameDecodeErrorsTotal.WithLabelValues(reason).Inc()
	}
	peer := conn.PeerAddr()
	s.log.Debug().Str("peer", peer).Msg("connection accepted")
	defer func() {
		_ = conn.Close()
		s.log.Debug().Str("peer", peer).Msg("connection closed")
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var accumulating bool
	var accKind frame.Kind
	var acc []byte

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.log.Debug().Str("peer", peer).Err(err).Msg("connection read ended")
			return
		}

		switch f.Header.Kind {
		case frame.KindPing:
			if werr := conn.WriteFrames([]*frame.Frame{frame.NewPong()}); werr != nil {
				s.log.Warn().Err(werr).Str("peer", peer).Msg("pong reply failed")
				return
			}
		case frame.KindPong:
			s.log.Debug().Str("peer", peer).Msg("pong received")
		case frame.KindCmd, frame.KindRaft, frame.KindErr:
			if !accumulating {
				accumulating = true
				accKind = f.Header.Kind
				acc = acc[:0]
			}
			acc = append(acc, f.Payload...)
			if f.IsLast() {
				s.dispatch(accKind, acc, conn, peer)
				accumulating = false
			}
		default:
			s.log.Warn().Str("peer", peer).Msg("unknown frame kind, dropping")
		}
	}
}

func (s *Server) dispatch(kind frame.Kind, payload []byte, conn *connection.Connection, peer string) {
	if kind == frame.KindErr {
		s.log.Warn().Str("peer", peer).Str("body", string(payload)).Msg("peer reported error")
		return
	}

	decoded := command.Decode(payload)

	if command.IsRaft(decoded.Inner) {
		if err := s.pm.Send(postman.RaftMsg, decoded.Inner); err != nil {
			s.log.Warn().Err(err).Str("peer", peer).Msg("raft envelope not delivered")
		}
		return
	}

	kindLabel := decoded.Inner.KindID().String()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CommandDuration, kindLabel)
	metrics.CommandsTotal.WithLabelValues(kindLabel, decoded.Inner.KindClass().String()).Inc()

	switch decoded.Inner.KindClass() {
	case command.ClassWrite:
		// Writes from a remote peer are proposed, never executed here
		// directly; the local database is mutated only by the Raft apply
		// loop once the entry commits.
		if err := s.pm.Send(postman.RaftProposal, raft.ProposalCommand{Cmd: decoded.Inner}); err != nil {
			s.log.Warn().Err(err).Str("peer", peer).Msg("write proposal not delivered")
			s.sendError(conn, peer, err)
		}
	default:
		value, ok, err := decoded.Inner.Execute(s.db)
		if err != nil {
			s.sendError(conn, peer, err)
			return
		}
		if !ok {
			return
		}
		reply := frame.Build(frame.KindCmd, value.Encode())
		if werr := conn.WriteFrames(reply); werr != nil {
			s.log.Warn().Err(werr).Str("peer", peer).Msg("reply write failed")
		}
	}
}

func (s *Server) sendError(conn *connection.Connection, peer string, cause error) {
	if werr := conn.WriteFrames([]*frame.Frame{frame.NewError(cause.Error())}); werr != nil {
		s.log.Warn().Err(werr).Str("peer", peer).Msg("error reply failed")
	}
}
