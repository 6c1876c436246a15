// Package runtime is the process-level supervisor: it owns the
// configuration and the postman and starts/stops every other subsystem
// against a shared cancellation context.
package runtime

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/ringkv/pkg/cmdserver"
	"github.com/cuemby/ringkv/pkg/config"
	"github.com/cuemby/ringkv/pkg/connection"
	"github.com/cuemby/ringkv/pkg/db"
	"github.com/cuemby/ringkv/pkg/discovery"
	"github.com/cuemby/ringkv/pkg/log"
	"github.com/cuemby/ringkv/pkg/metrics"
	"github.com/cuemby/ringkv/pkg/node"
	"github.com/cuemby/ringkv/pkg/postman"
	"github.com/cuemby/ringkv/pkg/raft"
)

// NewNodeID derives this process's 64-bit identity by hashing a random
// boot-time token, so restarts never collide with a still-live peer.
func NewNodeID() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(uuid.New().String()))
	return h.Sum64()
}

// Runtime wires together every subsystem named in the system overview and
// owns their combined lifecycle.
type Runtime struct {
	cfg    *config.Config
	nodeID uint64

	pm         *postman.Postman
	table      *node.Table
	connMgr    *connection.Manager
	database   *db.Database
	discovery  *discovery.Discovery
	discoverCh <-chan any
	dbCmdCh    <-chan any
	integrator *raft.Integrator
	cmdSrv     *cmdserver.Server
	collector  *metrics.Collector

	log zerolog.Logger
}

// New builds every subsystem but starts none of them; call Run to start.
func New(cfg *config.Config, nodeID uint64) (*Runtime, error) {
	logger := log.WithNode(nodeID)

	pm := postman.New()
	raftMsgCh, ok := pm.Register(postman.RaftMsg, 256)
	if !ok {
		return nil, errAlreadyRegistered("raft_msg")
	}
	raftProposalCh, ok := pm.Register(postman.RaftProposal, 256)
	if !ok {
		return nil, errAlreadyRegistered("raft_proposal")
	}
	discoverCh, ok := pm.Register(postman.Discover, 256)
	if !ok {
		return nil, errAlreadyRegistered("discover")
	}
	dbCmdCh, ok := pm.Register(postman.DbCmdReq, 256)
	if !ok {
		return nil, errAlreadyRegistered("db_cmd_req")
	}

	table := node.NewTable(nodeID, cfg.MulticastTTL)
	table.Ping(node.Node{ID: nodeID, Port: cfg.ListenPort, IsSelf: true, Online: true})

	connMgr := connection.NewManager(table, connection.DefaultDialer)
	database := db.New()

	disc := discovery.New(discovery.Config{
		SelfID:           nodeID,
		ListenPort:       cfg.ListenPort,
		MulticastGroup:   cfg.MulticastGroup,
		MulticastPort:    cfg.MulticastPort,
		AnnounceInterval: cfg.MulticastInterval,
	}, pm, logger)

	integrator, err := raft.New(raft.Config{
		ID:            nodeID,
		ElectionTick:  cfg.RaftElectionTick,
		HeartbeatTick: cfg.RaftHeartbeatTick,
		Tick:          cfg.RaftTick,
	}, pm, raftMsgCh, raftProposalCh, connMgr, table, logger)
	if err != nil {
		return nil, err
	}

	cmdSrv := cmdserver.New(cmdserver.Config{
		ListenAddr: cfg.ListenAddr,
		ListenPort: cfg.ListenPort,
	}, pm, database, logger)

	collector := metrics.NewCollector(table, integrator, connMgr, cfg.MulticastTTLCheckInterval)

	r := &Runtime{
		cfg:        cfg,
		nodeID:     nodeID,
		pm:         pm,
		table:      table,
		connMgr:    connMgr,
		database:   database,
		discovery:  disc,
		discoverCh: discoverCh,
		dbCmdCh:    dbCmdCh,
		integrator: integrator,
		cmdSrv:     cmdSrv,
		collector:  collector,
		log:        logger.With().Str("component", "runtime").Logger(),
	}
	return r, nil
}

// Run starts every subsystem and blocks until ctx is canceled, then stops
// them all and waits for a clean shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	r.collector.Start()
	defer r.collector.Stop()

	metricsSrv := r.startMetricsServer()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	if err := r.discovery.Start(ctx); err != nil {
		return err
	}
	defer r.discovery.Close()
	metrics.RegisterComponent("discovery", true, "")

	// Every node bootstraps its own single-voter group on startup; peers
	// join the existing leader's group later through ProposalAddNode
	// rather than by bootstrapping one of their own.
	if err := r.integrator.Bootstrap(); err != nil {
		return err
	}
	metrics.RegisterComponent("raft", true, "")

	wg.Add(1)
	go func() {
		defer wg.Done()
		discovery.RunConsumer(ctx, r.discoverCh, r.table, r.pm, r.cfg.MulticastTTLCheckInterval, r.log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.integrator.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		metrics.RegisterComponent("cmdserver", true, "")
		if err := r.cmdSrv.Run(ctx); err != nil {
			r.log.Error().Err(err).Msg("command server stopped with error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.applyLoop(ctx)
	}()

	if r.cfg.LocalCmdMode {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.localCmdLoop(ctx)
		}()
	}

	r.log.Info().Uint64("node_id", r.nodeID).Msg("runtime started")
	<-ctx.Done()
	r.log.Info().Msg("runtime shutting down")
	wg.Wait()
	return nil
}

// startMetricsServer serves /metrics and the liveness/readiness endpoints on
// cfg.MetricsAddr in the background; a bind failure is logged, not fatal,
// since a node missing its metrics endpoint should still serve commands.
func (r *Runtime) startMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.LivenessHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())

	srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Warn().Err(err).Str("addr", r.cfg.MetricsAddr).Msg("metrics server stopped")
		}
	}()
	return srv
}

// applyLoop is the database's single writer: it drains DbCmdReq, the only
// channel the Raft apply path and (indirectly) local writes use to mutate
// the store, so every replica applies the same sequence.
func (r *Runtime) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.dbCmdCh:
			cmd, ok := msg.(interface {
				Execute(*db.Database) (db.Value, bool, error)
			})
			if !ok {
				r.log.Warn().Msg("db_cmd_req received non-command message")
				continue
			}
			if _, _, err := cmd.Execute(r.database); err != nil {
				r.log.Warn().Err(err).Msg("apply failed")
			}
		}
	}
}

// localCmdLoop is the minimal LOCAL_CMD_MODE trigger: a stub tick, not a
// general client. Mirrors the original's self-exercising client only in
// spirit; a full demo command loop is out of scope here.
func (r *Runtime) localCmdLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.log.Debug().Msg("local cmd mode tick")
		}
	}
}

type errAlreadyRegistered string

func (e errAlreadyRegistered) Error() string {
	return "runtime: postman channel already registered: " + string(e)
}
