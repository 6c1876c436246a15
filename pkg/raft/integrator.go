// Package raft drives the cluster's Raft consensus group: an integrator
// that owns a RawNode over an in-memory log, steps it from peer messages,
// proposes local writes, and applies committed entries to the database.
package raft

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/cuemby/ringkv/pkg/command"
	"github.com/cuemby/ringkv/pkg/connection"
	"github.com/cuemby/ringkv/pkg/frame"
	"github.com/cuemby/ringkv/pkg/metrics"
	"github.com/cuemby/ringkv/pkg/node"
	"github.com/cuemby/ringkv/pkg/postman"
)

// Config configures the Raft integrator.
type Config struct {
	ID            uint64
	ElectionTick  int
	HeartbeatTick int
	Tick          time.Duration
}

// Integrator owns the RawNode and drives its Ready/Advance cycle.
type Integrator struct {
	cfg     Config
	raw     *etcdraft.RawNode
	storage *etcdraft.MemoryStorage

	pm      *postman.Postman
	raftMsg <-chan any
	propCh  <-chan any

	connMgr *connection.Manager
	table   *node.Table

	appliedIndex uint64
	confState    raftpb.ConfState
	log          zerolog.Logger
}

// New constructs an Integrator for a single-member group containing only
// this node; peers join later via ProposalAddNode config changes.
func New(cfg Config, pm *postman.Postman, raftMsg, proposals <-chan any, connMgr *connection.Manager, table *node.Table, log zerolog.Logger) (*Integrator, error) {
	storage := etcdraft.NewMemoryStorage()
	raftCfg := &etcdraft.Config{
		ID:                        cfg.ID,
		ElectionTick:              cfg.ElectionTick,
		HeartbeatTick:             cfg.HeartbeatTick,
		Storage:                   storage,
		MaxSizePerMsg:             1024 * 1024,
		MaxInflightMsgs:           256,
		MaxUncommittedEntriesSize: 1 << 30,
	}

	raw, err := etcdraft.NewRawNode(raftCfg)
	if err != nil {
		return nil, err
	}

	return &Integrator{
		cfg:     cfg,
		raw:     raw,
		storage: storage,
		pm:      pm,
		raftMsg: raftMsg,
		propCh:  proposals,
		connMgr: connMgr,
		table:   table,
		log:     log.With().Str("component", "raft").Logger(),
	}, nil
}

// Bootstrap seeds a brand new group with this node as its sole initial
// voter and immediately campaigns, so a single-node cluster reaches
// leadership without waiting on an election timeout. Joining peers are
// added later through ProposalAddNode.
func (r *Integrator) Bootstrap() error {
	if err := r.raw.Bootstrap([]etcdraft.Peer{{ID: r.cfg.ID}}); err != nil {
		return err
	}
	return r.raw.Campaign()
}

// IsLeader reports whether this node currently believes it is the Raft
// leader.
func (r *Integrator) IsLeader() bool {
	return r.raw.Status().RaftState == etcdraft.StateLeader
}

// AppliedIndex returns the last Raft log index applied to the database.
func (r *Integrator) AppliedIndex() uint64 {
	return r.appliedIndex
}

// CommittedIndex returns the last Raft log index known committed.
func (r *Integrator) CommittedIndex() uint64 {
	return r.raw.Status().HardState.Commit
}

// Run drives the ticker/drain/Ready loop until ctx is canceled.
func (r *Integrator) Run(ctx context.Context) {
	tick := r.cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("raft integrator shutdown")
			return
		case msg, ok := <-r.raftMsg:
			if !ok {
				r.log.Error().Msg("raft message channel disconnected, stopping integrator")
				return
			}
			r.handleRaftMsg(msg)
		case prop, ok := <-r.propCh:
			if !ok {
				r.log.Error().Msg("raft proposal channel disconnected, stopping integrator")
				return
			}
			r.handleProposal(prop)
		case <-ticker.C:
			r.raw.Tick()
			r.processReady()
		}
	}
}

func (r *Integrator) handleRaftMsg(msg any) {
	envelope, ok := msg.(command.Raft)
	if !ok {
		r.log.Warn().Msg("ignoring non-raft message on raft_msg channel")
		return
	}
	var m raftpb.Message
	if err := m.Unmarshal(envelope.Body); err != nil {
		r.log.Warn().Err(err).Msg("malformed raft transport message, dropping")
		return
	}
	if err := r.raw.Step(m); err != nil {
		r.log.Warn().Err(err).Msg("raft step failed")
	}
	r.processReady()
}

func (r *Integrator) handleProposal(prop any) {
	switch p := prop.(type) {
	case ProposalAddNode:
		status := r.raw.Status()
		if status.RaftState != etcdraft.StateLeader {
			r.log.Debug().Msg("ignoring add-node proposal: not leader")
			return
		}
		if _, isVoter := status.Progress[p.Node.ID]; isVoter {
			r.log.Debug().Uint64("node_id", p.Node.ID).Msg("ignoring add-node proposal: already a voter")
			return
		}
		cc := raftpb.ConfChange{Type: raftpb.ConfChangeAddNode, NodeID: p.Node.ID}
		if err := r.raw.ProposeConfChange(cc); err != nil {
			r.log.Warn().Err(err).Msg("propose conf change failed")
		}
	case ProposalCommand:
		if command.IsRaft(p.Cmd) || p.Cmd.KindClass() != command.ClassWrite {
			r.log.Warn().Msg("ignoring invalid command proposal")
			return
		}
		outer := command.New(p.Cmd)
		if err := r.raw.Propose(outer.Encode()); err != nil {
			r.log.Warn().Err(err).Msg("propose command failed")
		}
	default:
		r.log.Warn().Msg("ignoring unknown proposal type")
	}
	r.processReady()
}

// processReady drains one or more Ready cycles (the light-Ready pattern:
// repeat until HasReady is false) per the integrator's documented steps.
func (r *Integrator) processReady() {
	for r.raw.HasReady() {
		rd := r.raw.Ready()

		if !etcdraft.IsEmptySnap(rd.Snapshot) {
			if err := r.storage.ApplySnapshot(rd.Snapshot); err != nil {
				r.log.Warn().Err(err).Msg("apply snapshot failed")
			}
		}

		r.apply(rd.CommittedEntries)

		if len(rd.Entries) > 0 {
			if err := r.storage.Append(rd.Entries); err != nil {
				r.log.Warn().Err(err).Msg("append entries failed")
			}
		}
		if !etcdraft.IsEmptyHardState(rd.HardState) {
			if err := r.storage.SetHardState(rd.HardState); err != nil {
				r.log.Warn().Err(err).Msg("persist hard state failed")
			}
		}

		r.route(rd.Messages)

		r.raw.Advance(rd)
	}
}

// route sends each outbound message to its destination, bucketed so
// per-destination ordering is preserved while destinations proceed
// independently. Any per-destination failure is logged and does not
// prevent the others from being sent.
func (r *Integrator) route(messages []raftpb.Message) {
	if len(messages) == 0 {
		return
	}

	byDest := make(map[uint64][]raftpb.Message)
	for _, m := range messages {
		byDest[m.To] = append(byDest[m.To], m)
	}

	done := make(chan struct{}, len(byDest))
	for dest, msgs := range byDest {
		go func(dest uint64, msgs []raftpb.Message) {
			defer func() { done <- struct{}{} }()
			r.sendTo(dest, msgs)
		}(dest, msgs)
	}
	for range byDest {
		<-done
	}
}

func (r *Integrator) sendTo(dest uint64, messages []raftpb.Message) {
	conn, ok, err := r.connMgr.GetByID(dest)
	if err != nil {
		r.log.Warn().Err(err).Uint64("dest", dest).Msg("raft route: dial failed")
		return
	}
	if !ok {
		r.log.Warn().Uint64("dest", dest).Msg("raft route: destination not in node table")
		return
	}

	var frames []*frame.Frame
	for _, m := range messages {
		body, err := m.Marshal()
		if err != nil {
			r.log.Warn().Err(err).Msg("raft route: marshal message failed")
			continue
		}
		raftCmd := command.New(command.Raft{Body: body})
		frames = append(frames, frame.Build(frame.KindRaft, raftCmd.Encode())...)
	}
	if len(frames) == 0 {
		return
	}
	if err := conn.WriteFrames(frames); err != nil {
		r.log.Warn().Err(err).Uint64("dest", dest).Msg("raft route: write failed")
	}
}

// apply walks committed entries: conf changes are applied to the RawNode
// and their resulting ConfState recorded; normal entries decode to a
// Command and, if valid/write-class/non-envelope, are forwarded to the
// database apply loop via DbCmdReq.
func (r *Integrator) apply(entries []raftpb.Entry) {
	for _, entry := range entries {
		switch entry.Type {
		case raftpb.EntryConfChange:
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(entry.Data); err != nil {
				r.log.Warn().Err(err).Msg("malformed conf change entry, skipping")
				continue
			}
			// No on-disk snapshot store; the resulting ConfState is tracked
			// only in memory for the lifetime of this process.
			r.confState = *r.raw.ApplyConfChange(cc)
		case raftpb.EntryNormal:
			if len(entry.Data) == 0 {
				continue // new-leader sentinel
			}
			decoded := command.Decode(entry.Data)
			if decoded.Inner.KindID() == command.IDInvalid {
				continue
			}
			if decoded.Inner.KindClass() != command.ClassWrite || command.IsRaft(decoded.Inner) {
				continue
			}
			timer := metrics.NewTimer()
			if err := r.pm.Send(postman.DbCmdReq, decoded.Inner); err != nil {
				r.log.Warn().Err(err).Msg("post to db_cmd_req failed")
			}
			timer.ObserveDuration(metrics.RaftApplyDuration)
		}
		r.appliedIndex = entry.Index
	}
}
