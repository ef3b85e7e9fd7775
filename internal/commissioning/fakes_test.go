package commissioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"servo-commissioning/internal/model"
)

// fakeDevice is a servo attached to the fake bus
type fakeDevice struct {
	id    int
	baud  int
	model int
}

// fakeOpener owns the simulated wire. Every bus it opens shares one
// operation log so call ordering can be asserted across handles.
type fakeOpener struct {
	mu      sync.Mutex
	devices []*fakeDevice
	openErr error
	buses   []*fakeBus
	ops     []string

	// failures injected by operation name, e.g. "temperature"
	failOn  map[string]error
	pingErr error
}

func newFakeOpener(devices ...*fakeDevice) *fakeOpener {
	return &fakeOpener{devices: devices, failOn: make(map[string]error)}
}

func (o *fakeOpener) Open(port string, baud int, kind model.DeviceKind) (Bus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.ops = append(o.ops, fmt.Sprintf("open %d", baud))
	if o.openErr != nil {
		return nil, o.openErr
	}
	b := &fakeBus{opener: o, baud: baud, kind: kind}
	o.buses = append(o.buses, b)
	return b, nil
}

func (o *fakeOpener) record(op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	name, _, _ := strings.Cut(op, " ")
	return o.failOn[name]
}

func (o *fakeOpener) log() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ops...)
}

// writes returns the logged operations that modify a device
func (o *fakeOpener) writes() []string {
	var out []string
	for _, op := range o.log() {
		if strings.HasPrefix(op, "open ") || strings.HasPrefix(op, "close ") {
			continue
		}
		out = append(out, op)
	}
	return out
}

func (o *fakeOpener) device(id, baud int) *fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, d := range o.devices {
		if d.id == id && d.baud == baud {
			return d
		}
	}
	return nil
}

type fakeBus struct {
	opener     *fakeOpener
	baud       int
	kind       model.DeviceKind
	closeCalls int
	pings      int
}

func (b *fakeBus) Ping(ctx context.Context, id int) (bool, error) {
	b.pings++
	if b.opener.pingErr != nil {
		return false, b.opener.pingErr
	}
	return b.opener.device(id, b.baud) != nil, nil
}

func (b *fakeBus) ModelNumber(ctx context.Context, id int) (int, error) {
	d := b.opener.device(id, b.baud)
	if d == nil {
		return 0, errors.New("no reply")
	}
	return d.model, nil
}

func (b *fakeBus) ChangeID(ctx context.Context, from, to int) error {
	if err := b.opener.record(fmt.Sprintf("change_id %d->%d", from, to)); err != nil {
		return err
	}
	if d := b.opener.device(from, b.baud); d != nil {
		d.id = to
	}
	return nil
}

func (b *fakeBus) SetAngleLimits(ctx context.Context, id int, limits model.AngleLimits) error {
	return b.opener.record(fmt.Sprintf("angle_limits %d %d..%d", id, limits.Min, limits.Max))
}

func (b *fakeBus) SetReturnDelay(ctx context.Context, id, delay int) error {
	return b.opener.record(fmt.Sprintf("return_delay %d %d", id, delay))
}

func (b *fakeBus) SetTemperatureLimit(ctx context.Context, id, celsius int) error {
	return b.opener.record(fmt.Sprintf("temperature %d %d", id, celsius))
}

func (b *fakeBus) SetBaudRate(ctx context.Context, id, baud int) error {
	return b.opener.record(fmt.Sprintf("baud %d %d", id, baud))
}

func (b *fakeBus) BaudRate() int {
	return b.baud
}

func (b *fakeBus) Close() error {
	b.closeCalls++
	b.opener.record(fmt.Sprintf("close %d", b.baud))
	return nil
}

type resolverFunc func(goos string) (string, error)

func (f resolverFunc) Resolve(goos string) (string, error) {
	return f(goos)
}

func staticPort(port string) resolverFunc {
	return func(string) (string, error) { return port, nil }
}
