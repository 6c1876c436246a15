package raft

import (
	"github.com/cuemby/ringkv/pkg/command"
	"github.com/cuemby/ringkv/pkg/node"
)

// Proposal is the in-process wrapper routed to the Raft integrator via the
// postman's RaftProposal channel: either a request to add a voter or a
// write command to propose as a normal log entry.
type Proposal interface {
	isProposal()
}

// ProposalAddNode asks the integrator to propose a configuration change
// adding n as a voter, honored only if this peer is currently leader and n
// is not already a voter.
type ProposalAddNode struct {
	Node node.Node
}

func (ProposalAddNode) isProposal() {}

// ProposalCommand asks the integrator to propose cmd as a normal entry. It
// is honored only if cmd is valid, write-class, and not itself a Raft
// envelope.
type ProposalCommand struct {
	Cmd command.Executable
}

func (ProposalCommand) isProposal() {}
