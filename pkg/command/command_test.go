package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ringkv/pkg/db"
)

func TestOuterEncodeDecodeRoundTrip(t *testing.T) {
	cmd := New(HashPut{Key: "k", MemberKey: "m", MemberValue: db.String("v")})
	encoded := cmd.Encode()

	decoded := Decode(encoded)
	require.Equal(t, IDHashPut, decoded.Inner.KindID())

	put, ok := decoded.Inner.(HashPut)
	require.True(t, ok)
	assert.Equal(t, "k", put.Key)
	assert.Equal(t, "m", put.MemberKey)
	assert.Equal(t, "v", put.MemberValue.String)
}

func TestDecodeUnknownCmdIDYieldsInvalid(t *testing.T) {
	// Field 1 (cmd_id) as a varint with value 99, which no command kind uses.
	decoded := Decode([]byte{0x08, 0x63})
	assert.Equal(t, IDInvalid, decoded.Inner.KindID())
}

func TestHashPutExecuteCreatesHash(t *testing.T) {
	database := db.New()
	cmd := HashPut{Key: "k", MemberKey: "m", MemberValue: db.String("v")}
	_, _, err := cmd.Execute(database)
	require.NoError(t, err)

	v, ok := database.HashGet("k", "m")
	require.True(t, ok)
	assert.Equal(t, "v", v.String)
}

func TestHashPutExecuteTypeMismatch(t *testing.T) {
	database := db.New()
	database.Set("k", db.String("not a hash"))

	cmd := HashPut{Key: "k", MemberKey: "m", MemberValue: db.String("v")}
	_, _, err := cmd.Execute(database)
	assert.Error(t, err)
}

func TestHashGetExecute(t *testing.T) {
	database := db.New()
	require.NoError(t, database.HashPut("k", "m", db.String("v")))

	cmd := HashGet{Key: "k", MemberKey: "m"}
	v, ok, err := cmd.Execute(database)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v.String)
}

func TestRaftExecuteFails(t *testing.T) {
	database := db.New()
	cmd := Raft{Body: []byte("msg")}
	_, _, err := cmd.Execute(database)
	assert.ErrorIs(t, err, ErrRaftNotExecutable)
	assert.True(t, IsRaft(cmd))
}

func TestHelloIsNoOp(t *testing.T) {
	cmd := Hello{Valid: true}
	v, ok, err := cmd.Execute(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, db.KindNone, v.Kind)
}

func TestClassificationTable(t *testing.T) {
	assert.Equal(t, ClassRead, Hello{}.KindClass())
	assert.Equal(t, ClassRead, HashGet{}.KindClass())
	assert.Equal(t, ClassWrite, HashPut{}.KindClass())
	assert.Equal(t, ClassWrite, Raft{}.KindClass())
	assert.Equal(t, ClassRead, Invalid{}.KindClass())
}
