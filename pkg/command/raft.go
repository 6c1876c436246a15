package command

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cuemby/ringkv/pkg/db"
)

// ErrRaftNotExecutable is returned by Raft.Execute: a Raft envelope must
// never reach the database apply path, only the Raft integrator's Step.
var ErrRaftNotExecutable = errors.New("command: raft envelope must not be executed against the database")

// Raft wraps a serialized Raft transport message as this command's body.
// It is transport-only: it is never applied against the database, only
// routed to the local Raft integrator's Step.
type Raft struct {
	Body []byte
}

func (r Raft) String() string { return "Raft" }

func (r Raft) KindID() ID { return IDRaft }

func (r Raft) KindClass() Class { return ClassWrite }

// Execute always fails. Callers are expected to special-case IsRaft before
// executing, routing it to the Raft integrator instead.
func (r Raft) Execute(*db.Database) (db.Value, bool, error) {
	return db.None(), false, ErrRaftNotExecutable
}

const raftFieldBody = 1

func (r Raft) Encode() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, raftFieldBody, protowire.BytesType)
	buf = protowire.AppendBytes(buf, r.Body)
	return buf
}

// DecodeRaft decodes Raft's inner payload: the opaque serialized transport
// message, passed through unparsed for the Raft integrator to consume.
func DecodeRaft(payload []byte) Executable {
	var r Raft
	for len(payload) > 0 {
		num, _, n := protowire.ConsumeTag(payload)
		if n < 0 {
			break
		}
		rest := payload[n:]
		b, bn := protowire.ConsumeBytes(rest)
		if bn < 0 {
			break
		}
		if num == raftFieldBody {
			r.Body = append([]byte(nil), b...)
		}
		payload = rest[bn:]
	}
	return r
}
