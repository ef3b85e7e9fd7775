// internal/dynamixel/client.go
package dynamixel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrTimeout means no valid status packet arrived before the read deadline
var ErrTimeout = errors.New("status packet timeout")

// Transport is the byte stream a client talks over
type Transport interface {
	io.ReadWriter
	ResetInputBuffer() error
}

// StatusError carries a non-zero error field from a status packet
type StatusError struct {
	Protocol Protocol
	ID       int
	Code     byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("servo %d reported error 0x%02x (%s)", e.ID, e.Code, e.Protocol)
}

// Alarm reports whether the error only flags a hardware alarm. The
// instruction was still executed in that case.
func (e *StatusError) Alarm() bool {
	if e.Protocol == Protocol2 {
		return e.Code&0x7F == 0
	}
	// input voltage, overheating and overload bits
	return e.Code&^byte(0x01|0x04|0x20) == 0
}

// Client performs instruction/status round trips on one transport
type Client struct {
	transport Transport
	protocol  Protocol
	timeout   time.Duration
	mu        sync.Mutex
}

// NewClient creates a client speaking the given protocol
func NewClient(transport Transport, protocol Protocol, timeout time.Duration) *Client {
	return &Client{
		transport: transport,
		protocol:  protocol,
		timeout:   timeout,
	}
}

// Protocol returns the protocol version in use
func (c *Client) Protocol() Protocol {
	return c.protocol
}

// Ping checks whether a device answers at the identifier
func (c *Client) Ping(ctx context.Context, id int) error {
	_, err := c.transact(ctx, id, InstPing, nil, id)
	return err
}

// Read reads length bytes of the control table starting at addr
func (c *Client) Read(ctx context.Context, id, addr, length int) ([]byte, error) {
	pkt, err := c.transact(ctx, id, InstRead, readParams(c.protocol, addr, length), id)
	if err != nil {
		return nil, err
	}
	if len(pkt.Params) != length {
		return nil, fmt.Errorf("read %d bytes at address %d from servo %d, got %d: %w",
			length, addr, id, len(pkt.Params), ErrChecksum)
	}
	return pkt.Params, nil
}

// Write writes data to the control table starting at addr
func (c *Client) Write(ctx context.Context, id, addr int, data []byte) error {
	_, err := c.transact(ctx, id, InstWrite, writeParams(c.protocol, addr, data), id)
	return err
}

// writeAccepting is Write where the status reply may come from any of replyIDs
func (c *Client) writeAccepting(ctx context.Context, id, addr int, data []byte, replyIDs ...int) error {
	_, err := c.transact(ctx, id, InstWrite, writeParams(c.protocol, addr, data), replyIDs...)
	return err
}

func (c *Client) transact(ctx context.Context, id int, inst Instruction, params []byte, replyIDs ...int) (*StatusPacket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.transport.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("failed to flush input: %w", err)
	}

	packet := EncodeInstruction(c.protocol, byte(id), inst, params)
	if _, err := c.transport.Write(packet); err != nil {
		return nil, fmt.Errorf("failed to write instruction: %w", err)
	}

	pkt, err := c.readStatus(ctx, replyIDs)
	if err != nil {
		return nil, err
	}

	if pkt.Error != 0 {
		statusErr := &StatusError{Protocol: c.protocol, ID: int(pkt.ID), Code: pkt.Error}
		if !statusErr.Alarm() {
			return pkt, statusErr
		}
	}
	return pkt, nil
}

func (c *Client) readStatus(ctx context.Context, replyIDs []int) (*StatusPacket, error) {
	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 64)
	corrupt := false

	for {
		for len(buf) > 0 {
			pkt, n, err := DecodeStatus(c.protocol, buf)
			buf = buf[n:]
			if errors.Is(err, ErrIncomplete) {
				if n == 0 {
					break
				}
				continue
			}
			if err != nil {
				corrupt = true
				continue
			}
			if acceptsID(replyIDs, int(pkt.ID)) {
				return pkt, nil
			}
		}

		if time.Now().After(deadline) {
			if corrupt {
				return nil, ErrChecksum
			}
			return nil, ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := c.transport.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to read status: %w", err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		buf = append(buf, chunk[:n]...)
	}
}

func acceptsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
