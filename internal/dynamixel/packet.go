// internal/dynamixel/packet.go
package dynamixel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Protocol is the packet format spoken on the bus
type Protocol int

const (
	Protocol1 Protocol = 1
	Protocol2 Protocol = 2
)

func (p Protocol) String() string {
	return fmt.Sprintf("protocol %d.0", int(p))
}

// Instruction codes shared by both protocol versions
type Instruction byte

const (
	InstPing   Instruction = 0x01
	InstRead   Instruction = 0x02
	InstWrite  Instruction = 0x03
	InstStatus Instruction = 0x55 // protocol 2 only
)

const (
	BroadcastID = 0xFE
	MaxID       = 0xFC
)

var (
	header1 = []byte{0xFF, 0xFF}
	header2 = []byte{0xFF, 0xFF, 0xFD, 0x00}
)

var (
	// ErrIncomplete means more bytes are needed to decode a packet
	ErrIncomplete = errors.New("incomplete packet")
	// ErrChecksum means a packet was framed but failed its integrity check
	ErrChecksum = errors.New("packet checksum mismatch")
)

// StatusPacket is a device reply
type StatusPacket struct {
	ID     byte
	Error  byte
	Params []byte
}

// EncodeInstruction frames an instruction packet for the given protocol
func EncodeInstruction(p Protocol, id byte, inst Instruction, params []byte) []byte {
	if p == Protocol2 {
		return encodeV2(id, inst, params)
	}
	return encodeV1(id, inst, params)
}

func encodeV1(id byte, inst Instruction, params []byte) []byte {
	packet := make([]byte, 0, 6+len(params))
	packet = append(packet, header1...)
	packet = append(packet, id, byte(len(params)+2), byte(inst))
	packet = append(packet, params...)
	return append(packet, checksum(packet[2:]))
}

func encodeV2(id byte, inst Instruction, params []byte) []byte {
	stuffed := stuff(params)
	length := len(stuffed) + 3

	packet := make([]byte, 0, 10+len(stuffed))
	packet = append(packet, header2...)
	packet = append(packet, id, byte(length), byte(length>>8), byte(inst))
	packet = append(packet, stuffed...)

	crc := CRC16(packet)
	return append(packet, byte(crc), byte(crc>>8))
}

// DecodeStatus looks for the first status packet in buf. It returns the
// packet and the number of bytes consumed. ErrIncomplete asks for more
// input; ErrChecksum reports a corrupt frame whose bytes were consumed.
func DecodeStatus(p Protocol, buf []byte) (*StatusPacket, int, error) {
	if p == Protocol2 {
		return decodeV2(buf)
	}
	return decodeV1(buf)
}

func decodeV1(buf []byte) (*StatusPacket, int, error) {
	i := bytes.Index(buf, header1)
	if i < 0 {
		return nil, 0, ErrIncomplete
	}
	// a run of 0xFF: the frame starts at the last pair
	for i+2 < len(buf) && buf[i+2] == 0xFF {
		i++
	}
	if len(buf) < i+4 {
		return nil, i, ErrIncomplete
	}

	length := int(buf[i+3])
	if length < 2 {
		return nil, i + 2, ErrChecksum
	}
	total := 4 + length
	if len(buf) < i+total {
		return nil, i, ErrIncomplete
	}

	frame := buf[i : i+total]
	if checksum(frame[2:total-1]) != frame[total-1] {
		return nil, i + total, ErrChecksum
	}

	return &StatusPacket{
		ID:     frame[2],
		Error:  frame[4],
		Params: append([]byte(nil), frame[5:total-1]...),
	}, i + total, nil
}

func decodeV2(buf []byte) (*StatusPacket, int, error) {
	i := bytes.Index(buf, header2)
	if i < 0 {
		return nil, 0, ErrIncomplete
	}
	if len(buf) < i+7 {
		return nil, i, ErrIncomplete
	}

	length := int(binary.LittleEndian.Uint16(buf[i+5 : i+7]))
	if length < 4 {
		return nil, i + 4, ErrChecksum
	}
	total := 7 + length
	if len(buf) < i+total {
		return nil, i, ErrIncomplete
	}

	frame := buf[i : i+total]
	want := binary.LittleEndian.Uint16(frame[total-2:])
	if CRC16(frame[:total-2]) != want {
		return nil, i + total, ErrChecksum
	}
	if Instruction(frame[7]) != InstStatus {
		// an echoed instruction packet on a half-duplex adapter
		return nil, i + total, ErrIncomplete
	}

	return &StatusPacket{
		ID:     frame[4],
		Error:  frame[8],
		Params: unstuff(frame[9 : total-2]),
	}, i + total, nil
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}

// stuff inserts 0xFD after every FF FF FD sequence so a payload can never
// look like a header
func stuff(params []byte) []byte {
	out := make([]byte, 0, len(params)+len(params)/3)
	for _, b := range params {
		out = append(out, b)
		n := len(out)
		if n >= 3 && out[n-3] == 0xFF && out[n-2] == 0xFF && out[n-1] == 0xFD {
			out = append(out, 0xFD)
		}
	}
	return out
}

func unstuff(params []byte) []byte {
	out := make([]byte, 0, len(params))
	for i := 0; i < len(params); i++ {
		out = append(out, params[i])
		n := len(out)
		if n >= 3 && out[n-3] == 0xFF && out[n-2] == 0xFF && out[n-1] == 0xFD &&
			i+1 < len(params) && params[i+1] == 0xFD {
			i++
		}
	}
	return out
}

// readParams builds READ instruction parameters
func readParams(p Protocol, addr, length int) []byte {
	if p == Protocol2 {
		return []byte{byte(addr), byte(addr >> 8), byte(length), byte(length >> 8)}
	}
	return []byte{byte(addr), byte(length)}
}

// writeParams builds WRITE instruction parameters
func writeParams(p Protocol, addr int, data []byte) []byte {
	var params []byte
	if p == Protocol2 {
		params = []byte{byte(addr), byte(addr >> 8)}
	} else {
		params = []byte{byte(addr)}
	}
	return append(params, data...)
}
