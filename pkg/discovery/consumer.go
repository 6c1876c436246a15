package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ringkv/pkg/node"
	"github.com/cuemby/ringkv/pkg/postman"
	"github.com/cuemby/ringkv/pkg/raft"
)

// RunConsumer drains the postman's Discover channel, pinging the node table
// for each sighting and proposing it as a Raft voter, and prunes expired
// entries on pruneInterval. It blocks until ctx is canceled.
//
// Every sighting is proposed, not just the first one: ProposalAddNode is a
// no-op on the integrator side unless this node is leader and the sighted
// node is not already a voter, so reproposing an existing voter on repeat
// announcements costs nothing.
func RunConsumer(ctx context.Context, discoverCh <-chan any, table *node.Table, pm *postman.Postman, pruneInterval time.Duration, log zerolog.Logger) {
	log = log.With().Str("component", "discovery.consumer").Logger()
	if pruneInterval <= 0 {
		pruneInterval = 10 * time.Second
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-discoverCh:
			if !ok {
				return
			}
			n, ok := msg.(node.Node)
			if !ok {
				log.Warn().Msg("discover channel received non-Node message")
				continue
			}
			table.Ping(n)
			if !n.IsSelf {
				if err := pm.Send(postman.RaftProposal, raft.ProposalAddNode{Node: n}); err != nil {
					log.Debug().Err(err).Uint64("node_id", n.ID).Msg("add-node proposal not delivered")
				}
			}
		case <-ticker.C:
			if removed := table.Prune(); removed > 0 {
				log.Info().Int("removed", removed).Msg("pruned expired nodes")
			}
		}
	}
}
