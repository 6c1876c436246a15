package command

import "github.com/cuemby/ringkv/pkg/db"

// Invalid is what an unrecognized or malformed command decodes to: inert,
// read-only, a no-op on execute.
type Invalid struct{}

func (Invalid) String() string { return "Invalid" }

func (Invalid) KindID() ID { return IDInvalid }

func (Invalid) KindClass() Class { return ClassRead }

func (Invalid) Execute(*db.Database) (db.Value, bool, error) {
	return db.None(), false, nil
}

func (Invalid) Encode() []byte { return nil }
