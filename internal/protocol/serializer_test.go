package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name   string             `json:"name"`
	Values map[string]float64 `json:"values"`
	Blob   string             `json:"blob,omitempty"`
}

func TestSerializer_SmallPayloadUncompressed(t *testing.T) {
	ms, err := NewMessageSerializer()
	require.NoError(t, err)

	msg, err := ms.BuildEnvelope(MsgInput, testPayload{Name: "short"})
	require.NoError(t, err)
	assert.False(t, msg.Compressed, "мелкая нагрузка не сжимается")

	var decoded testPayload
	require.NoError(t, ms.DeserializePayload(msg, &decoded))
	assert.Equal(t, "short", decoded.Name)
}

func TestSerializer_LargePayloadCompressedRoundTrip(t *testing.T) {
	ms, err := NewMessageSerializer()
	require.NoError(t, err)

	original := testPayload{
		Name: "snapshot",
		Blob: strings.Repeat("мир в большом снимке ", 100),
	}

	data, err := ms.SerializeMessage(MsgSnapshot, original)
	require.NoError(t, err)

	// До распаковки конверт помечен как сжатый
	raw := &Message{}
	require.NoError(t, json.Unmarshal(data, raw))
	assert.True(t, raw.Compressed)

	msg, err := ms.DeserializeMessage(data)
	require.NoError(t, err)
	assert.False(t, msg.Compressed, "после распаковки флаг снят")

	var decoded testPayload
	require.NoError(t, ms.DeserializePayload(msg, &decoded))
	assert.Equal(t, original.Blob, decoded.Blob)
}

func TestSerializer_DeterministicMapOrdering(t *testing.T) {
	ms, err := NewMessageSerializer()
	require.NoError(t, err)

	payload := testPayload{
		Name:   "acks",
		Values: map[string]float64{"zeta": 1, "alpha": 2, "mid": 3},
	}

	a, err := ms.BuildEnvelope(MsgSnapshot, payload)
	require.NoError(t, err)
	b, err := ms.BuildEnvelope(MsgSnapshot, payload)
	require.NoError(t, err)

	assert.Equal(t, a.Payload, b.Payload, "ключи карт сериализуются в стабильном порядке")
}

func TestSerializer_CorruptedFrameData(t *testing.T) {
	ms, err := NewMessageSerializer()
	require.NoError(t, err)

	_, err = ms.DeserializeMessage([]byte("не json"))
	assert.Error(t, err)
}

func TestFrames_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"netcode:input"}`)

	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrames_MultipleSequential(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("один")))
	require.NoError(t, WriteFrame(&buf, []byte("два")))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	second, err := ReadFrame(&buf)
	require.NoError(t, err)

	assert.Equal(t, "один", string(first))
	assert.Equal(t, "два", string(second))
}

func TestFrames_CorruptedLengthRejected(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], maxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(header[:]))
	assert.Error(t, err, "длина за лимитом кадра отклоняется")
}

func TestFrames_TruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	buf.Write(header[:])
	buf.WriteString("обрыв")

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}
