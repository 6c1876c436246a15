package command

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cuemby/ringkv/pkg/db"
)

// HashPut inserts member_key=member_value into the Hash at key, creating it
// if absent. Replicated: it only ever runs from the database apply loop
// after a successful Raft commit.
type HashPut struct {
	Key         string
	MemberKey   string
	MemberValue db.Value
}

func (h HashPut) String() string { return fmt.Sprintf("HashPut(%s)", h.Key) }

func (h HashPut) KindID() ID { return IDHashPut }

func (h HashPut) KindClass() Class { return ClassWrite }

func (h HashPut) Execute(database *db.Database) (db.Value, bool, error) {
	if err := database.HashPut(h.Key, h.MemberKey, h.MemberValue); err != nil {
		return db.None(), false, err
	}
	return db.None(), false, nil
}

const (
	hashPutFieldKey         = 1
	hashPutFieldMemberKey   = 2
	hashPutFieldMemberValue = 3
)

func (h HashPut) Encode() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, hashPutFieldKey, protowire.BytesType)
	buf = protowire.AppendString(buf, h.Key)
	buf = protowire.AppendTag(buf, hashPutFieldMemberKey, protowire.BytesType)
	buf = protowire.AppendString(buf, h.MemberKey)
	buf = protowire.AppendTag(buf, hashPutFieldMemberValue, protowire.BytesType)
	buf = protowire.AppendBytes(buf, h.MemberValue.Encode())
	return buf
}

// DecodeHashPut decodes HashPut's inner payload. Any field that fails to
// parse is left at its zero value, consistent with how Invalid absorbs a
// wholly malformed outer command.
func DecodeHashPut(payload []byte) Executable {
	var h HashPut
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
		case hashPutFieldKey:
			h.Key = string(b)
		case hashPutFieldMemberKey:
			h.MemberKey = string(b)
		case hashPutFieldMemberValue:
			if v, err := db.DecodeValue(b); err == nil {
				h.MemberValue = v
			}
		}
		payload = rest[bn:]
	}
	return h
}
