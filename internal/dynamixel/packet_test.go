package dynamixel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeInstruction_Ping(t *testing.T) {
	assert.Equal(t,
		[]byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB},
		EncodeInstruction(Protocol1, 1, InstPing, nil))

	assert.Equal(t,
		[]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01, 0x19, 0x4E},
		EncodeInstruction(Protocol2, 1, InstPing, nil))
}

func TestEncodeInstruction_WriteProtocol1(t *testing.T) {
	// set id 1 to id 5
	packet := EncodeInstruction(Protocol1, 1, InstWrite, writeParams(Protocol1, AddrID, []byte{5}))
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x04, 0x03, 0x03, 0x05, 0xEF}, packet)
}

func TestDecodeStatus_Protocol2(t *testing.T) {
	raw := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x07, 0x00, 0x55, 0x00, 0x06, 0x04, 0x26, 0x65, 0x5D}

	pkt, n, err := DecodeStatus(Protocol2, raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, byte(1), pkt.ID)
	assert.Equal(t, byte(0), pkt.Error)
	assert.Equal(t, []byte{0x06, 0x04, 0x26}, pkt.Params)
}

func TestDecodeStatus_Protocol1SkipsLeadingNoise(t *testing.T) {
	status := EncodeInstruction(Protocol1, 7, Instruction(0), []byte{0x0C, 0x00})
	raw := append([]byte{0x00, 0x12, 0xFF}, status...)

	pkt, n, err := DecodeStatus(Protocol1, raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, byte(7), pkt.ID)
	assert.Equal(t, []byte{0x0C, 0x00}, pkt.Params)
}

func TestDecodeStatus_Incomplete(t *testing.T) {
	status := EncodeInstruction(Protocol1, 3, Instruction(0), nil)

	_, _, err := DecodeStatus(Protocol1, status[:len(status)-1])
	assert.ErrorIs(t, err, ErrIncomplete)

	_, _, err = DecodeStatus(Protocol2, []byte{0xFF, 0xFF, 0xFD})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDecodeStatus_ChecksumMismatch(t *testing.T) {
	status := EncodeInstruction(Protocol1, 3, Instruction(0), nil)
	status[len(status)-1] ^= 0xFF

	_, n, err := DecodeStatus(Protocol1, status)
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, len(status), n)

	v2 := encodeV2(3, InstStatus, []byte{0x00})
	v2[len(v2)-2] ^= 0x01
	_, _, err = DecodeStatus(Protocol2, v2)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestByteStuffing(t *testing.T) {
	params := []byte{0x01, 0xFF, 0xFF, 0xFD, 0x02}

	stuffed := stuff(params)
	assert.Equal(t, []byte{0x01, 0xFF, 0xFF, 0xFD, 0xFD, 0x02}, stuffed)
	assert.Equal(t, params, unstuff(stuffed))

	packet := encodeV2(9, InstStatus, append([]byte{0x00}, params...))
	pkt, _, err := DecodeStatus(Protocol2, packet)
	require.NoError(t, err)
	assert.Equal(t, params, pkt.Params)
}

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0x4E19), CRC16([]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01}))
	assert.Equal(t, uint16(0x5D65), CRC16([]byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x07, 0x00, 0x55, 0x00, 0x06, 0x04, 0x26}))
}
