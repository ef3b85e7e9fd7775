package commissioning

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servo-commissioning/internal/bus"
	"servo-commissioning/internal/model"
)

var testTarget = model.TargetConfig{
	Identifier:       10,
	AngleLimits:      model.AngleLimits{Min: -150, Max: 90},
	BaudRate:         1000000,
	TemperatureLimit: 55,
	ReturnDelay:      20,
}

var fullWriteSequence = []string{
	"angle_limits 10 -150..90",
	"return_delay 10 20",
	"temperature 10 55",
	"baud 10 1000000",
}

func newTestEngine(opener *fakeOpener, resolver PortResolver, settle time.Duration) *Engine {
	logger := zap.NewNop()
	scanner := NewScanner(0, 39, logger)
	negotiator := NewNegotiator(opener, scanner, []int{57600, 1000000}, 1000000, logger)
	return NewEngine(EngineConfig{GOOS: "linux", SettleDelay: settle}, resolver, negotiator, scanner, logger)
}

func servoRequest(t *testing.T, kind model.DeviceKind) model.CommissioningRequest {
	t.Helper()
	req, err := model.NewCommissioningRequest("right arm", "r_shoulder_pitch", kind)
	require.NoError(t, err)
	return req
}

func assertClosedOnce(t *testing.T, opener *fakeOpener) {
	t.Helper()
	for _, b := range opener.buses {
		assert.Equal(t, 1, b.closeCalls, "bus at %d baud", b.baud)
	}
}

func TestCommission_ChangesIdentifierBeforeOtherWrites(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 3, baud: 57600, model: 12})
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	require.Equal(t, model.OutcomeSuccess, outcome.Kind, outcome.Detail)
	assert.Equal(t, append([]string{"change_id 3->10"}, fullWriteSequence...), opener.writes())

	require.NotNil(t, outcome.Device)
	assert.Equal(t, 10, outcome.Device.Identifier)
	assert.Equal(t, 12, outcome.Device.ModelNumber)
	assert.Equal(t, 1000000, outcome.Device.BaudRate)
	assert.Equal(t, testTarget.AngleLimits, outcome.Device.AngleLimits)

	log := opener.log()
	assert.Equal(t, "open 57600", log[0])
	assert.Equal(t, "close 57600", log[len(log)-1])
	require.Len(t, opener.buses, 1)
	assertClosedOnce(t, opener)
}

func TestCommission_SkipsIdentifierChangeWhenAlreadySet(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 10, baud: 57600, model: 12})
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	require.True(t, outcome.Succeeded())
	assert.Equal(t, fullWriteSequence, opener.writes())
	assertClosedOnce(t, opener)
}

func TestCommission_NegotiatesSecondBaudRate(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 10, baud: 1000000, model: 29})
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	require.True(t, outcome.Succeeded())
	log := opener.log()
	assert.Equal(t, []string{"open 57600", "close 57600", "open 1000000"}, log[:3])
	assert.Equal(t, "close 1000000", log[len(log)-1])
	require.Len(t, opener.buses, 2)
	assertClosedOnce(t, opener)
}

func TestCommission_NoDevice(t *testing.T) {
	opener := newFakeOpener()
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomeNoDeviceDetected, outcome.Kind)
	assert.Equal(t, []string{"open 57600", "close 57600", "open 1000000", "close 1000000"}, opener.log())
	assert.Empty(t, opener.writes())
	assertClosedOnce(t, opener)
}

func TestCommission_MultipleDevicesWritesNothing(t *testing.T) {
	opener := newFakeOpener(
		&fakeDevice{id: 7, baud: 57600, model: 12},
		&fakeDevice{id: 3, baud: 57600, model: 12},
	)
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomeMultipleDevicesDetected, outcome.Kind)
	assert.Equal(t, []int{3, 7}, outcome.DetectedIDs)
	assert.Empty(t, opener.writes())
	assertClosedOnce(t, opener)
}

func TestCommission_WriteFailureStopsFurtherWrites(t *testing.T) {
	for i, step := range []string{"angle_limits", "return_delay", "temperature", "baud"} {
		t.Run(step, func(t *testing.T) {
			opener := newFakeOpener(&fakeDevice{id: 10, baud: 57600, model: 12})
			opener.failOn[step] = errors.New("status packet timeout")
			engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

			outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

			assert.Equal(t, model.OutcomeConfigurationTimeout, outcome.Kind)
			assert.Error(t, outcome.Err)
			assert.Equal(t, fullWriteSequence[:i+1], opener.writes())
			assertClosedOnce(t, opener)
		})
	}
}

func TestCommission_IdentifierChangeFailure(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 3, baud: 57600, model: 12})
	opener.failOn["change_id"] = errors.New("status packet timeout")
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomeConfigurationTimeout, outcome.Kind)
	assert.Equal(t, []string{"change_id 3->10"}, opener.writes())
	assertClosedOnce(t, opener)
}

func TestCommission_PortNotFound(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 10, baud: 57600})
	resolver := resolverFunc(func(string) (string, error) {
		return "", fmt.Errorf("%w matching [/dev/ttyUSB*]", bus.ErrPortNotFound)
	})
	engine := newTestEngine(opener, resolver, 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomePortNotFound, outcome.Kind)
	assert.Empty(t, opener.log())
}

func TestCommission_OpenFailureIsPortNotFound(t *testing.T) {
	opener := newFakeOpener()
	opener.openErr = errors.New("permission denied")
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomePortNotFound, outcome.Kind)
	assert.Empty(t, opener.buses)
}

func TestCommission_TransportErrorDuringScan(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 10, baud: 57600})
	opener.pingErr = errors.New("input/output error")
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)

	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomeCommunicationTimeout, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrCommunication)
	require.Len(t, opener.buses, 1)
	assertClosedOnce(t, opener)
}

func TestCommission_ReducedVoltageSkipsNegotiation(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 1, baud: 1000000, model: 350})
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 0)
	target := testTarget
	target.Identifier = 30

	req, err := model.NewCommissioningRequest("head", "l_antenna", model.DeviceKindReducedVoltageServo)
	require.NoError(t, err)

	outcome := engine.Commission(context.Background(), "a1", req, target)

	require.True(t, outcome.Succeeded(), outcome.Detail)
	require.Len(t, opener.buses, 1)
	assert.Equal(t, 1000000, opener.buses[0].baud)
	assert.Equal(t, model.DeviceKindReducedVoltageServo, opener.buses[0].kind)
	assert.Equal(t, 40, opener.buses[0].pings)
	assert.Equal(t, "change_id 1->30", opener.writes()[0])
	assertClosedOnce(t, opener)
}

func TestCommission_SettlesAfterEachWrite(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 10, baud: 57600, model: 12})
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), 5*time.Millisecond)

	start := time.Now()
	outcome := engine.Commission(context.Background(), "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	require.True(t, outcome.Succeeded())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCommission_CancelledDuringSettle(t *testing.T) {
	opener := newFakeOpener(&fakeDevice{id: 10, baud: 57600, model: 12})
	engine := newTestEngine(opener, staticPort("/dev/ttyUSB0"), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome := engine.Commission(ctx, "a1", servoRequest(t, model.DeviceKindStandardServo), testTarget)

	assert.Equal(t, model.OutcomeConfigurationTimeout, outcome.Kind)
	assert.Equal(t, fullWriteSequence[:1], opener.writes())
	assertClosedOnce(t, opener)
}
