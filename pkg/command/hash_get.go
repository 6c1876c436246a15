package command

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cuemby/ringkv/pkg/db"
)

// HashGet reads member_key from the Hash at key. Read-only: it never
// replicates and executes straight against the local database.
type HashGet struct {
	Key       string
	MemberKey string
}

func (h HashGet) String() string { return fmt.Sprintf("HashGet(%s)", h.Key) }

func (h HashGet) KindID() ID { return IDHashGet }

func (h HashGet) KindClass() Class { return ClassRead }

func (h HashGet) Execute(database *db.Database) (db.Value, bool, error) {
	v, ok := database.HashGet(h.Key, h.MemberKey)
	return v, ok, nil
}

const (
	hashGetFieldKey       = 1
	hashGetFieldMemberKey = 2
)

func (h HashGet) Encode() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, hashGetFieldKey, protowire.BytesType)
	buf = protowire.AppendString(buf, h.Key)
	buf = protowire.AppendTag(buf, hashGetFieldMemberKey, protowire.BytesType)
	buf = protowire.AppendString(buf, h.MemberKey)
	return buf
}

// DecodeHashGet decodes HashGet's inner payload.
func DecodeHashGet(payload []byte) Executable {
	var h HashGet
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
		switch num {
		case hashGetFieldKey:
			h.Key = string(b)
		case hashGetFieldMemberKey:
			h.MemberKey = string(b)
		}
		payload = rest[bn:]
	}
	return h
}
