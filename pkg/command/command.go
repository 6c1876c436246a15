// Package command implements the ExecutableCommand capability set: the
// outer tagged wire envelope plus the Hello/HashGet/HashPut/Raft/Invalid
// command kinds it carries.
package command

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cuemby/ringkv/pkg/db"
)

// ID tags a command's wire kind.
type ID int32

const (
	IDInvalid ID = iota
	IDHello
	IDHashGet
	IDHashPut
	IDRaft
)

// String returns a stable, low-cardinality label for ID: unlike
// Executable.String(), it never embeds a key or other request-specific
// data, so it is safe to use as a Prometheus label value.
func (id ID) String() string {
	switch id {
	case IDHello:
		return "hello"
	case IDHashGet:
		return "hash_get"
	case IDHashPut:
		return "hash_put"
	case IDRaft:
		return "raft"
	default:
		return "invalid"
	}
}

// Class separates commands that may be replicated (Write) from those that
// only ever execute locally (Read).
type Class int

const (
	ClassRead Class = iota
	ClassWrite
)

func (c Class) String() string {
	if c == ClassWrite {
		return "write"
	}
	return "read"
}

// Executable is the capability every command kind implements.
type Executable interface {
	fmt.Stringer
	KindID() ID
	KindClass() Class
	// Execute runs the command purely against db; it never replicates.
	Execute(database *db.Database) (db.Value, bool, error)
	// Encode returns the command's self-contained inner payload.
	Encode() []byte
}

// IsRaft reports whether cmd is the Raft envelope kind.
func IsRaft(cmd Executable) bool { return cmd.KindID() == IDRaft }

// Command is the outer wire record: {cmd_id, timestamp, inner bytes}.
type Command struct {
	Inner     Executable
	Timestamp time.Time
}

// New wraps inner with the current time as its outer timestamp.
func New(inner Executable) Command {
	return Command{Inner: inner, Timestamp: time.Now()}
}

const (
	outerFieldCmdID     = 1
	outerFieldTimestamp = 2
	outerFieldValue     = 3

	timestampFieldSeconds = 1
	timestampFieldNanos   = 2
)

// Encode serializes the outer command record: cmd_id, a protobuf-style
// Timestamp, and the inner command's own encoding as opaque bytes.
func (c Command) Encode() []byte {
	var ts []byte
	ts = protowire.AppendTag(ts, timestampFieldSeconds, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(c.Timestamp.Unix()))
	ts = protowire.AppendTag(ts, timestampFieldNanos, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(c.Timestamp.Nanosecond()))

	var buf []byte
	buf = protowire.AppendTag(buf, outerFieldCmdID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Inner.KindID()))
	buf = protowire.AppendTag(buf, outerFieldTimestamp, protowire.BytesType)
	buf = protowire.AppendBytes(buf, ts)
	buf = protowire.AppendTag(buf, outerFieldValue, protowire.BytesType)
	buf = protowire.AppendBytes(buf, c.Inner.Encode())
	return buf
}

// Decode parses the outer record and dispatches to the inner kind's own
// decoder. An unrecognized cmd_id, or a malformed outer record, decodes to
// Invalid rather than failing the whole read — corrupt commands are inert,
// not fatal to the connection. A malformed inner payload does not become
// Invalid: the inner decoders leave any field they cannot parse at its zero
// value.
func Decode(buf []byte) Command {
	var cmdID ID
	var timestamp time.Time
	var innerBytes []byte

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return New(Invalid{})
		}
		rest := buf[n:]
		switch num {
		case outerFieldCmdID:
			v, vn := protowire.ConsumeVarint(rest)
			if vn < 0 {
				return New(Invalid{})
			}
			cmdID = ID(v)
			buf = rest[vn:]
		case outerFieldTimestamp:
			tsBytes, bn := protowire.ConsumeBytes(rest)
			if bn < 0 {
				return New(Invalid{})
			}
			timestamp = decodeTimestamp(tsBytes)
			buf = rest[bn:]
		case outerFieldValue:
			v, bn := protowire.ConsumeBytes(rest)
			if bn < 0 {
				return New(Invalid{})
			}
			innerBytes = v
			buf = rest[bn:]
		default:
			skip, err := skipField(buf, typ, n)
			if err != nil {
				return New(Invalid{})
			}
			buf = skip
		}
	}

	inner := decodeInner(cmdID, innerBytes)
	return Command{Inner: inner, Timestamp: timestamp}
}

func decodeTimestamp(buf []byte) time.Time {
	var seconds int64
	var nanos int64
	for len(buf) > 0 {
		num, _, n := protowire.ConsumeTag(buf)
		if n < 0 {
			break
		}
		v, vn := protowire.ConsumeVarint(buf[n:])
		if vn < 0 {
			break
		}
		switch num {
		case timestampFieldSeconds:
			seconds = int64(v)
		case timestampFieldNanos:
			nanos = int64(v)
		}
		buf = buf[n+vn:]
	}
	return time.Unix(seconds, nanos)
}

func decodeInner(id ID, payload []byte) Executable {
	switch id {
	case IDHello:
		return DecodeHello(payload)
	case IDHashGet:
		return DecodeHashGet(payload)
	case IDHashPut:
		return DecodeHashPut(payload)
	case IDRaft:
		return DecodeRaft(payload)
	default:
		return Invalid{}
	}
}

func skipField(buf []byte, typ protowire.Type, tagLen int) ([]byte, error) {
	rest := buf[tagLen:]
	switch typ {
	case protowire.VarintType:
		_, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return nil, fmt.Errorf("command: malformed varint field")
		}
		return rest[n:], nil
	case protowire.BytesType:
		_, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return nil, fmt.Errorf("command: malformed bytes field")
		}
		return rest[n:], nil
	default:
		return nil, fmt.Errorf("command: unsupported wire type %v", typ)
	}
}
