package raft

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/cuemby/ringkv/pkg/command"
	"github.com/cuemby/ringkv/pkg/connection"
	"github.com/cuemby/ringkv/pkg/db"
	"github.com/cuemby/ringkv/pkg/node"
	"github.com/cuemby/ringkv/pkg/postman"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestIntegrator(t *testing.T) (*Integrator, *postman.Postman) {
	t.Helper()
	pm := postman.New()
	raftMsgCh, ok := pm.Register(postman.RaftMsg, 8)
	require.True(t, ok)
	propCh, ok := pm.Register(postman.RaftProposal, 8)
	require.True(t, ok)
	_, ok = pm.Register(postman.DbCmdReq, 8)
	require.True(t, ok)

	table := node.NewTable(1, time.Minute)
	connMgr := connection.NewManager(table, connection.DefaultDialer)

	integrator, err := New(Config{ID: 1, ElectionTick: 10, HeartbeatTick: 1, Tick: time.Hour}, pm, raftMsgCh, propCh, connMgr, table, testLogger())
	require.NoError(t, err)
	return integrator, pm
}

func TestNewSingleVoterCanCampaignAndApplyWrites(t *testing.T) {
	integrator, pm := newTestIntegrator(t)

	require.NoError(t, integrator.Bootstrap())
	integrator.processReady()

	// Drive ticks until this lone voter becomes leader.
	for i := 0; i < 20 && integrator.raw.Status().RaftState != etcdraft.StateLeader; i++ {
		integrator.raw.Tick()
		integrator.processReady()
	}
	require.Equal(t, etcdraft.StateLeader, integrator.raw.Status().RaftState)

	integrator.handleProposal(ProposalCommand{Cmd: command.HashPut{Key: "k", MemberKey: "mk", MemberValue: db.String("v")}})

	select {
	case msg := <-mustConsumerChan(t, pm):
		put, ok := msg.(command.HashPut)
		require.True(t, ok)
		assert.Equal(t, "k", put.Key)
	case <-time.After(time.Second):
		t.Fatal("expected applied command on db_cmd_req")
	}
}

func mustConsumerChan(t *testing.T, pm *postman.Postman) <-chan any {
	t.Helper()
	ch, ok := pm.SendChan(postman.DbCmdReq)
	require.True(t, ok)
	out := make(chan any, 1)
	go func() {
		out <- <-ch
	}()
	return out
}

func TestHandleProposal_RejectsReadClassCommand(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	// HashGet is read-class; proposing it must be a no-op, not a crash.
	integrator.handleProposal(ProposalCommand{Cmd: command.HashGet{Key: "k", MemberKey: "mk"}})
	assert.Equal(t, uint64(0), integrator.appliedIndex)
}

func TestHandleProposal_RejectsRaftEnvelope(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	integrator.handleProposal(ProposalCommand{Cmd: command.Raft{Body: []byte("x")}})
	assert.Equal(t, uint64(0), integrator.appliedIndex)
}

func TestHandleProposal_AddNodeIgnoredWhenNotLeader(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	integrator.handleProposal(ProposalAddNode{Node: node.Node{ID: 2}})
	assert.NotEqual(t, etcdraft.StateLeader, integrator.raw.Status().RaftState)
}

func TestHandleRaftMsg_MalformedBodyDropped(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	integrator.handleRaftMsg(command.Raft{Body: []byte{0xff, 0xff, 0xff}})
	assert.Equal(t, uint64(0), integrator.appliedIndex)
}

func TestHandleRaftMsg_IgnoresNonRaftPayload(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	integrator.handleRaftMsg("not a raft envelope")
	assert.Equal(t, uint64(0), integrator.appliedIndex)
}

func TestApply_SkipsEmptyNormalEntry(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	integrator.apply([]raftpb.Entry{{Type: raftpb.EntryNormal, Index: 5, Data: nil}})
	assert.Equal(t, uint64(5), integrator.appliedIndex)
}

func TestApply_SkipsInvalidDecodedEntry(t *testing.T) {
	integrator, pm := newTestIntegrator(t)
	ch, _ := pm.SendChan(postman.DbCmdReq)

	integrator.apply([]raftpb.Entry{{Type: raftpb.EntryNormal, Index: 1, Data: []byte{0x01, 0x02}}})

	select {
	case <-ch:
		t.Fatal("invalid entry must not reach db_cmd_req")
	default:
	}
}

func TestApply_PostsQualifyingWriteCommand(t *testing.T) {
	integrator, pm := newTestIntegrator(t)
	ch, _ := pm.SendChan(postman.DbCmdReq)

	cmd := command.New(command.HashPut{Key: "k", MemberKey: "mk", MemberValue: db.String("v")})
	integrator.apply([]raftpb.Entry{{Type: raftpb.EntryNormal, Index: 7, Data: cmd.Encode()}})

	select {
	case msg := <-ch:
		put, ok := msg.(command.HashPut)
		require.True(t, ok)
		assert.Equal(t, "k", put.Key)
	default:
		t.Fatal("expected qualifying write command posted to db_cmd_req")
	}
	assert.Equal(t, uint64(7), integrator.appliedIndex)
}

func TestApply_DropsRaftEnvelopeEntry(t *testing.T) {
	integrator, pm := newTestIntegrator(t)
	ch, _ := pm.SendChan(postman.DbCmdReq)

	cmd := command.New(command.Raft{Body: []byte("x")})
	integrator.apply([]raftpb.Entry{{Type: raftpb.EntryNormal, Index: 3, Data: cmd.Encode()}})

	select {
	case <-ch:
		t.Fatal("raft envelope entries must never reach db_cmd_req")
	default:
	}
}

func TestRoute_UnknownDestinationLogsAndSkips(t *testing.T) {
	integrator, _ := newTestIntegrator(t)
	// No peers in the table: routing must not panic or block.
	integrator.route([]raftpb.Message{{To: 99, From: 1}})
}

func TestRoute_SendsFramesToKnownDestination(t *testing.T) {
	integrator, _ := newTestIntegrator(t)

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	integrator.table.Ping(node.Node{ID: 2, Online: true})
	integrator.connMgr = connection.NewManager(integrator.table, func(n node.Node) (net.Conn, error) {
		return clientConn, nil
	})

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 512)
		n, _ := serverConn.Read(buf)
		readDone <- buf[:n]
	}()

	integrator.route([]raftpb.Message{{To: 2, From: 1, Type: raftpb.MsgHeartbeat}})

	select {
	case data := <-readDone:
		assert.NotEmpty(t, data)
		assert.Equal(t, byte(0xff), data[0])
	case <-time.After(time.Second):
		t.Fatal("expected raft message to be written to the peer connection")
	}
}
