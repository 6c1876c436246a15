package command

import "github.com/cuemby/ringkv/pkg/db"

// Hello is a no-op handshake command; execution and replication are both
// inert, it exists purely as a liveness/identification probe.
type Hello struct {
	Valid bool
}

func (h Hello) String() string { return "Hello" }

func (h Hello) KindID() ID { return IDHello }

func (h Hello) KindClass() Class { return ClassRead }

func (h Hello) Execute(*db.Database) (db.Value, bool, error) {
	return db.None(), false, nil
}

func (h Hello) Encode() []byte {
	return db.Boolean(h.Valid).Encode()
}

// DecodeHello decodes Hello's inner payload, defaulting to valid=false on
// any malformed input rather than failing the outer decode.
func DecodeHello(payload []byte) Executable {
	v, err := db.DecodeValue(payload)
	if err != nil || v.Kind != db.KindBoolean {
		return Hello{Valid: false}
	}
	return Hello{Valid: v.Boolean}
}
