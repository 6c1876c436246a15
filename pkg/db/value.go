// Package db implements the in-memory key/value store: the tagged Value
// sum type and the single-writer Database map built on top of it.
package db

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind tags a Value's active variant.
type Kind uint8

const (
	KindNone Kind = iota
	KindBoolean
	KindString
	KindBytes
	KindList
	KindHash
)

// Value is the tagged sum every stored value and command payload carries:
// None, Boolean, String, Bytes, List, or Hash. Only the field matching Kind
// is meaningful.
type Value struct {
	Kind    Kind
	Boolean bool
	String  string
	Bytes   []byte
	List    []Value
	Hash    map[string]Value
}

// None is the zero-value Value; commands use it as an absent/no-op body.
func None() Value { return Value{Kind: KindNone} }

func Boolean(b bool) Value { return Value{Kind: KindBoolean, Boolean: b} }

func String(s string) Value { return Value{Kind: KindString, String: s} }

func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

func List(items []Value) Value { return Value{Kind: KindList, List: items} }

func Hash(members map[string]Value) Value { return Value{Kind: KindHash, Hash: members} }

// Display renders a Value the way a log line would, mirroring the original's
// Display impl closely enough to stay recognizable in logs.
func (v Value) Display() string {
	switch v.Kind {
	case KindNone:
		return "Value::None"
	case KindBoolean:
		return fmt.Sprintf("Value::Boolean(%v)", v.Boolean)
	case KindString:
		return fmt.Sprintf("Value::String(%s)", v.String)
	case KindBytes:
		return fmt.Sprintf("Value::Bytes(%d bytes)", len(v.Bytes))
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Display()
		}
		return fmt.Sprintf("Value::List(%s)", strings.Join(parts, ","))
	case KindHash:
		parts := make([]string, 0, len(v.Hash))
		for k, item := range v.Hash {
			parts = append(parts, fmt.Sprintf("%s=%s", k, item.Display()))
		}
		return fmt.Sprintf("Value::Hash(%s)", strings.Join(parts, ","))
	default:
		return "Value::Unknown"
	}
}

// Field tags for the wire-level Value message. Each variant occupies its own
// field number so the wire shape matches a protobuf oneof.
const (
	valueFieldNone    = 1
	valueFieldBoolean = 2
	valueFieldString  = 3
	valueFieldBytes   = 4
	valueFieldList    = 5
	valueFieldHash    = 6

	// Hash is encoded as repeated {key, value} entries, protobuf map style.
	hashEntryFieldKey   = 1
	hashEntryFieldValue = 2
)

// Encode serializes v into the tagged wire format used for command payloads
// and database values.
func (v Value) Encode() []byte {
	var buf []byte
	switch v.Kind {
	case KindNone:
		buf = protowire.AppendTag(buf, valueFieldNone, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 0)
	case KindBoolean:
		buf = protowire.AppendTag(buf, valueFieldBoolean, protowire.VarintType)
		b := uint64(0)
		if v.Boolean {
			b = 1
		}
		buf = protowire.AppendVarint(buf, b)
	case KindString:
		buf = protowire.AppendTag(buf, valueFieldString, protowire.BytesType)
		buf = protowire.AppendString(buf, v.String)
	case KindBytes:
		buf = protowire.AppendTag(buf, valueFieldBytes, protowire.BytesType)
		buf = protowire.AppendBytes(buf, v.Bytes)
	case KindList:
		var inner []byte
		for _, item := range v.List {
			inner = append(inner, item.Encode()...)
		}
		buf = protowire.AppendTag(buf, valueFieldList, protowire.BytesType)
		buf = protowire.AppendBytes(buf, inner)
	case KindHash:
		var inner []byte
		for k, item := range v.Hash {
			var entry []byte
			entry = protowire.AppendTag(entry, hashEntryFieldKey, protowire.BytesType)
			entry = protowire.AppendString(entry, k)
			entry = protowire.AppendTag(entry, hashEntryFieldValue, protowire.BytesType)
			entry = protowire.AppendBytes(entry, item.Encode())
			inner = protowire.AppendTag(inner, 1, protowire.BytesType)
			inner = protowire.AppendBytes(inner, entry)
		}
		buf = protowire.AppendTag(buf, valueFieldHash, protowire.BytesType)
		buf = protowire.AppendBytes(buf, inner)
	}
	return buf
}

// DecodeValue parses a wire-format Value. An empty or unrecognized buffer
// decodes to None, matching the original's "absent oneof => None" rule.
func DecodeValue(buf []byte) (Value, error) {
	if len(buf) == 0 {
		return None(), nil
	}
	num, typ, n := protowire.ConsumeTag(buf)
	if n < 0 {
		return Value{}, fmt.Errorf("db: malformed value tag")
	}
	rest := buf[n:]

	switch num {
	case valueFieldNone:
		_, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Value{}, fmt.Errorf("db: malformed none value")
		}
		return None(), nil
	case valueFieldBoolean:
		b, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Value{}, fmt.Errorf("db: malformed boolean value")
		}
		return Boolean(b != 0), nil
	case valueFieldString:
		s, n := protowire.ConsumeBytes(rest)
		if n < 0 || typ != protowire.BytesType {
			return Value{}, fmt.Errorf("db: malformed string value")
		}
		return String(string(s)), nil
	case valueFieldBytes:
		b, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return Value{}, fmt.Errorf("db: malformed bytes value")
		}
		return Bytes(append([]byte(nil), b...)), nil
	case valueFieldList:
		inner, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return Value{}, fmt.Errorf("db: malformed list value")
		}
		var items []Value
		for len(inner) > 0 {
			item, consumed, err := consumeValueMessage(inner)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
			inner = inner[consumed:]
		}
		return List(items), nil
	case valueFieldHash:
		inner, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return Value{}, fmt.Errorf("db: malformed hash value")
		}
		members := make(map[string]Value)
		for len(inner) > 0 {
			_, _, en := protowire.ConsumeTag(inner)
			if en < 0 {
				return Value{}, fmt.Errorf("db: malformed hash entry tag")
			}
			entryBytes, ec := protowire.ConsumeBytes(inner[en:])
			if ec < 0 {
				return Value{}, fmt.Errorf("db: malformed hash entry")
			}
			key, val, err := decodeHashEntry(entryBytes)
			if err != nil {
				return Value{}, err
			}
			members[key] = val
			inner = inner[en+ec:]
		}
		return Hash(members), nil
	default:
		return None(), nil
	}
}

// consumeValueMessage reads one length-delimited Value wrapper (tag+bytes)
// used when Values are packed back to back inside a List: the tag itself
// identifies the variant, so DecodeValue and messageLen agree on its extent.
func consumeValueMessage(buf []byte) (Value, int, error) {
	val, err := DecodeValue(buf)
	if err != nil {
		return Value{}, 0, err
	}
	consumed, err := messageLen(buf)
	if err != nil {
		return Value{}, 0, err
	}
	return val, consumed, nil
}

// messageLen reports how many bytes DecodeValue would consume from the
// front of buf: one tag plus its payload.
func messageLen(buf []byte) (int, error) {
	_, typ, n := protowire.ConsumeTag(buf)
	if n < 0 {
		return 0, fmt.Errorf("db: malformed tag")
	}
	switch typ {
	case protowire.VarintType:
		_, vn := protowire.ConsumeVarint(buf[n:])
		if vn < 0 {
			return 0, fmt.Errorf("db: malformed varint")
		}
		return n + vn, nil
	case protowire.BytesType:
		_, bn := protowire.ConsumeBytes(buf[n:])
		if bn < 0 {
			return 0, fmt.Errorf("db: malformed bytes")
		}
		return n + bn, nil
	default:
		return 0, fmt.Errorf("db: unsupported wire type %v", typ)
	}
}

func decodeHashEntry(buf []byte) (string, Value, error) {
	var key string
	var val Value
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return "", Value{}, fmt.Errorf("db: malformed hash entry field")
		}
		rest := buf[n:]
		switch num {
		case hashEntryFieldKey:
			s, bn := protowire.ConsumeBytes(rest)
			if bn < 0 || typ != protowire.BytesType {
				return "", Value{}, fmt.Errorf("db: malformed hash entry key")
			}
			key = string(s)
			buf = rest[bn:]
		case hashEntryFieldValue:
			s, bn := protowire.ConsumeBytes(rest)
			if bn < 0 {
				return "", Value{}, fmt.Errorf("db: malformed hash entry value")
			}
			v, err := DecodeValue(s)
			if err != nil {
				return "", Value{}, err
			}
			val = v
			buf = rest[bn:]
		default:
			mlen, err := messageLen(buf)
			if err != nil {
				return "", Value{}, err
			}
			buf = buf[mlen:]
		}
	}
	return key, val, nil
}
