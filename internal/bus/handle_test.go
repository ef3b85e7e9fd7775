package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

type fakePort struct {
	mode        *serial.Mode
	written     []byte
	closeCalls  int
	readTimeout time.Duration
}

func (f *fakePort) SetMode(mode *serial.Mode) error { f.mode = mode; return nil }
func (f *fakePort) Read(p []byte) (int, error) { return 0, nil }
func (f *fakePort) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}
func (f *fakePort) Drain() error { return nil }
func (f *fakePort) ResetInputBuffer() error { return nil }
func (f *fakePort) ResetOutputBuffer() error { return nil }
func (f *fakePort) SetDTR(bool) error { return nil }
func (f *fakePort) SetRTS(bool) error { return nil }
func (f *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (f *fakePort) SetReadTimeout(t time.Duration) error { f.readTimeout = t; return nil }
func (f *fakePort) Close() error { f.closeCalls++; return nil }
func (f *fakePort) Break(time.Duration) error { return nil }

func stubSerialOpen(t *testing.T, port *fakePort, err error) *[]*serial.Mode {
	t.Helper()
	var modes []*serial.Mode
	orig := serialOpen
	serialOpen = func(name string, mode *serial.Mode) (serial.Port, error) {
		modes = append(modes, mode)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	t.Cleanup(func() { serialOpen = orig })
	return &modes
}

func TestOpen_ConfiguresPort(t *testing.T) {
	port := &fakePort{}
	modes := stubSerialOpen(t, port, nil)

	h, err := Open(Config{Port: "/dev/ttyUSB0", BaudRate: 57600, ReadTimeout: 20 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	defer h.Close()

	require.Len(t, *modes, 1)
	mode := (*modes)[0]
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, 20*time.Millisecond, port.readTimeout)
	assert.Equal(t, 57600, h.BaudRate())
	assert.Equal(t, "/dev/ttyUSB0", h.Path())
}

func TestHandle_CloseIsIdempotent(t *testing.T) {
	port := &fakePort{}
	stubSerialOpen(t, port, nil)

	h, err := Open(Config{Port: "/dev/ttyUSB1", BaudRate: 1000000}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, InUse("/dev/ttyUSB1"))

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	assert.Equal(t, 1, port.closeCalls)
	assert.False(t, InUse("/dev/ttyUSB1"))

	_, err = h.Write([]byte{0x01})
	assert.ErrorIs(t, err, ErrHandleClosed)
	_, err = h.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrHandleClosed)
	assert.ErrorIs(t, h.ResetInputBuffer(), ErrHandleClosed)
}

func TestOpen_RejectsSecondHandleOnSamePath(t *testing.T) {
	stubSerialOpen(t, &fakePort{}, nil)

	first, err := Open(Config{Port: "/dev/ttyUSB2", BaudRate: 57600}, zap.NewNop())
	require.NoError(t, err)

	_, err = Open(Config{Port: "/dev/ttyUSB2", BaudRate: 1000000}, zap.NewNop())
	assert.ErrorIs(t, err, ErrPortBusy)

	require.NoError(t, first.Close())

	second, err := Open(Config{Port: "/dev/ttyUSB2", BaudRate: 1000000}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpen_PropagatesOpenFailure(t *testing.T) {
	stubSerialOpen(t, nil, errors.New("no such file or directory"))

	_, err := Open(Config{Port: "/dev/ttyUSB3", BaudRate: 57600}, zap.NewNop())
	assert.Error(t, err)
	assert.False(t, InUse("/dev/ttyUSB3"))
}

func TestHandle_WriteCountsBytes(t *testing.T) {
	port := &fakePort{}
	stubSerialOpen(t, port, nil)

	h, err := Open(Config{Port: "/dev/ttyUSB4", BaudRate: 57600}, zap.NewNop())
	require.NoError(t, err)
	defer h.Close()

	n, err := h.Write([]byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(6), h.Stats().BytesWritten)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}, port.written)
}
