package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBuf(mistakeMagic, mistakeVersion, mistakeKind, mistakeLength bool) []byte {
	var buf []byte
	if mistakeMagic {
		buf = append(buf, 0xf1)
	} else {
		buf = append(buf, MagicPrefix)
	}

	version := CurrentVersion
	if mistakeVersion {
		version = CurrentVersion + 1
	}
	kind := KindCmd
	if mistakeKind {
		kind = KindUnknown
	}
	h := Header{Head: HeadFin, Version: version, Kind: kind}
	buf = append(buf, h.toByte())

	if mistakeLength {
		buf = append(buf, 10)
	} else {
		buf = append(buf, 1)
	}
	buf = append(buf, 0xff)
	return buf
}

func TestCheck_MismatchMagic(t *testing.T) {
	buf := buildBuf(true, false, false, false)
	res := Check(buf, true)
	assert.Equal(t, ResultMismatch, res.Result)
	assert.Equal(t, ReasonNoMagic, res.Mismatch)
}

func TestCheck_MismatchVersion(t *testing.T) {
	buf := buildBuf(false, true, false, false)
	res := Check(buf, true)
	assert.Equal(t, ResultMismatch, res.Result)
	assert.Equal(t, ReasonInvalidVersion, res.Mismatch)
}

func TestCheck_MismatchKind(t *testing.T) {
	buf := buildBuf(false, false, true, false)
	res := Check(buf, true)
	assert.Equal(t, ResultMismatch, res.Result)
	assert.Equal(t, ReasonInvalidKind, res.Mismatch)
}

func TestCheck_IncompleteEmpty(t *testing.T) {
	res := Check(nil, true)
	assert.Equal(t, ResultIncomplete, res.Result)
	assert.Equal(t, IncompleteNoData, res.Incomplete)
}

func TestCheck_MismatchPayload(t *testing.T) {
	buf := buildBuf(false, false, false, true)
	res := Check(buf, true)
	assert.Equal(t, ResultMismatch, res.Result)
	assert.Equal(t, ReasonInvalidPayload, res.Mismatch)
}

func TestCheck_Complete(t *testing.T) {
	buf := buildBuf(false, false, false, false)
	res := Check(buf, true)
	assert.Equal(t, ResultComplete, res.Result)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	f := New()
	f.Header.Kind = KindCmd
	f.Payload = []byte("hello")
	f.Length = uint8(len(f.Payload))

	encoded := f.Encode()
	require.Equal(t, ResultComplete, Check(encoded, true).Result)

	parsed, n, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, f.Payload, parsed.Payload)
	assert.Equal(t, f.Header.Kind, parsed.Header.Kind)
	assert.True(t, parsed.IsLast())
}

func TestPingPong(t *testing.T) {
	ping := NewPing()
	assert.Equal(t, KindPing, ping.Header.Kind)
	assert.True(t, ping.IsLast())

	pong := NewPong()
	assert.Equal(t, KindPong, pong.Header.Kind)
}

func TestBuildSingleFrame(t *testing.T) {
	frames := Build(KindCmd, []byte("short"))
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsLast())
}

func TestBuildMultiFrame(t *testing.T) {
	payload := make([]byte, MaxPayloadLength*2+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames := Build(KindCmd, payload)
	require.Len(t, frames, 3)
	for i, f := range frames {
		if i == len(frames)-1 {
			assert.True(t, f.IsLast())
		} else {
			assert.False(t, f.IsLast())
		}
	}

	var reassembled []byte
	for _, f := range frames {
		reassembled = append(reassembled, f.Payload...)
	}
	assert.Equal(t, payload, reassembled)
}

func TestBuildEmptyPayload(t *testing.T) {
	frames := Build(KindRaft, nil)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsLast())
	assert.Equal(t, uint8(0), frames[0].Length)
}
