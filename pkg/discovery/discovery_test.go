package discovery

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ringkv/pkg/node"
	"github.com/cuemby/ringkv/pkg/postman"
	"github.com/cuemby/ringkv/pkg/raft"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestMsgJSONShape(t *testing.T) {
	msg := Msg{ID: 42, Port: 7111, Online: true}
	encoded, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42,"addr":"","port":7111,"online":true}`, string(encoded))

	var decoded Msg
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestRunConsumerPingsOnSighting(t *testing.T) {
	table := node.NewTable(1, time.Minute)
	pm := postman.New()
	_, ok := pm.Register(postman.RaftProposal, 4)
	require.True(t, ok)
	ch := make(chan any, 1)
	ch <- node.Node{ID: 2, Online: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunConsumer(ctx, ch, table, pm, time.Hour, testLogger())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, table.Exist(2))
	<-done
}

func TestRunConsumerProposesNonSelfSightingAsVoter(t *testing.T) {
	table := node.NewTable(1, time.Minute)
	pm := postman.New()
	proposals, ok := pm.Register(postman.RaftProposal, 4)
	require.True(t, ok)
	ch := make(chan any, 1)
	ch <- node.Node{ID: 2, Online: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunConsumer(ctx, ch, table, pm, time.Hour, testLogger())
		close(done)
	}()

	select {
	case msg := <-proposals:
		add, ok := msg.(raft.ProposalAddNode)
		require.True(t, ok)
		assert.Equal(t, uint64(2), add.Node.ID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected an add-node proposal")
	}
	<-done
}

func TestRunConsumerDoesNotProposeSelfSighting(t *testing.T) {
	table := node.NewTable(1, time.Minute)
	pm := postman.New()
	proposals, ok := pm.Register(postman.RaftProposal, 4)
	require.True(t, ok)
	ch := make(chan any, 1)
	ch <- node.Node{ID: 1, IsSelf: true, Online: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunConsumer(ctx, ch, table, pm, time.Hour, testLogger())
		close(done)
	}()

	select {
	case <-proposals:
		t.Fatal("self sighting should not be proposed as a voter")
	case <-time.After(20 * time.Millisecond):
	}
	<-done
}

func TestRunConsumerPrunesOnTimer(t *testing.T) {
	table := node.NewTable(1, 5*time.Millisecond)
	table.Ping(node.Node{ID: 2, Online: true})
	pm := postman.New()
	_, ok := pm.Register(postman.RaftProposal, 4)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	ch := make(chan any)
	done := make(chan struct{})
	go func() {
		RunConsumer(ctx, ch, table, pm, 20*time.Millisecond, testLogger())
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, table.Exist(2))
	<-done
}
