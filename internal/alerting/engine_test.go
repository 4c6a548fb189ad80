package alerting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/datastore/repository"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/notification"
)

const testSystemType = "environment"

// mockDevices is an in-memory DeviceResolver.
type mockDevices struct {
	mu      sync.Mutex
	devices map[string]*entities.Device
	stall   atomic.Bool
	calls   atomic.Int32
}

func newMockDevices(ids ...string) *mockDevices {
	wh := &entities.Warehouse{ID: 1, Name: "Gudang Cikarang"}
	area := &entities.Area{ID: 1, WarehouseID: 1, Name: "Cold Room", Warehouse: wh}
	m := &mockDevices{devices: make(map[string]*entities.Device)}
	for _, id := range ids {
		m.devices[id] = &entities.Device{
			DeviceID:      id,
			Name:          "Controller " + id,
			Type:          "environment_controller",
			SystemType:    testSystemType,
			ActuatorState: entities.ActuatorOff,
			Area:          area,
		}
	}
	return m
}

func (m *mockDevices) GetDeviceWithHierarchy(ctx context.Context, id string) (*entities.Device, error) {
	m.calls.Add(1)
	if m.stall.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, repository.ErrDeviceNotFound
	}
	cp := *d
	if cp.Area == nil {
		return &cp, repository.ErrHierarchyIncomplete
	}
	return &cp, nil
}

func (m *mockDevices) setActuator(id, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id].ActuatorState = state
}

// mockActuator records commands and writes the state back like the real service.
type mockActuator struct {
	mu      sync.Mutex
	devices *mockDevices
	calls   []string
	err     error
}

func (m *mockActuator) SetActuatorState(_ context.Context, deviceID, desired string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, deviceID+"="+desired)
	if m.err != nil {
		return false, m.err
	}
	m.devices.setActuator(deviceID, desired)
	return true, nil
}

func (m *mockActuator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockNotifier records sent message kinds.
type mockNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
	systems  []string
	err      error
	block    chan struct{}
}

func (m *mockNotifier) Notify(ctx context.Context, systemType string, msg notification.Message) (notification.Report, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return notification.Report{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.systems = append(m.systems, systemType)
	if m.err != nil {
		return notification.Report{}, m.err
	}
	return notification.Report{PushSent: 1}, nil
}

func (m *mockNotifier) Kinds() []notification.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]notification.Kind, 0, len(m.messages))
	for _, msg := range m.messages {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

// mockAlertLog records alert log entries.
type mockAlertLog struct {
	mu      sync.Mutex
	entries []entities.AlertLog
	deleted atomic.Int32
}

func (m *mockAlertLog) SaveAlertLog(_ context.Context, entry *entities.AlertLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAlertLog) DeleteAlertLogsBefore(_ context.Context, _ time.Time) (int64, error) {
	m.deleted.Add(1)
	return 0, nil
}

func (m *mockAlertLog) Entries() []entities.AlertLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.AlertLog(nil), m.entries...)
}

type engineFixture struct {
	engine   *Engine
	devices  *mockDevices
	actuator *mockActuator
	notifier *mockNotifier
	alertLog *mockAlertLog
}

func newEngineFixture(t *testing.T, ids ...string) *engineFixture {
	t.Helper()
	if len(ids) == 0 {
		ids = []string{"dev-1"}
	}
	f := &engineFixture{
		devices:  newMockDevices(ids...),
		notifier: &mockNotifier{},
		alertLog: &mockAlertLog{},
	}
	f.actuator = &mockActuator{devices: f.devices}
	f.engine = NewEngine(
		DefaultProfiles(),
		f.devices,
		NewStateStore(nil, logger.NewNop()),
		logger.NewNop(),
		WithActuator(f.actuator),
		WithNotifier(f.notifier),
		WithAlertLog(f.alertLog),
		WithSideEffectTimeout(time.Second),
	)
	t.Cleanup(f.engine.Stop)
	return f
}

func temp(v float64) map[string]float64 {
	return map[string]float64{MetricTemperature: v}
}

func TestEngine_BelowThresholdNeverFires(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	for _, v := range []float64{20, 25, 39.9, 40, 12} {
		f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(v))
	}
	f.engine.Wait()

	assert.Empty(t, f.actuator.Calls())
	assert.Empty(t, f.notifier.Kinds(), "no alert and therefore no all clear")
	st, ok := f.engine.States().Get("dev-1")
	require.True(t, ok, "first reading resyncs the state")
	assert.False(t, st.IsAlertActive)
}

func TestEngine_FiresOnceWhileTriggered(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	outcomes := make([]Outcome, 0, 5)
	for _, v := range []float64{45, 46, 50, 41, 44} {
		outcomes = append(outcomes, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(v)))
	}
	f.engine.Wait()

	assert.Equal(t, []Outcome{OutcomeRising, OutcomeNoEdge, OutcomeNoEdge, OutcomeNoEdge, OutcomeNoEdge}, outcomes)
	assert.Equal(t, []notification.Kind{notification.KindAlertRaised}, f.notifier.Kinds())
	assert.Equal(t, []string{"dev-1=on"}, f.actuator.Calls())
}

func TestEngine_FlipFlopRoundTrip(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	assert.Equal(t, OutcomeRising, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45)))
	f.engine.Wait()
	assert.Equal(t, OutcomeFalling, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(30)))
	f.engine.Wait()
	assert.Equal(t, OutcomeNoEdge, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(29)))
	f.engine.Wait()

	assert.Equal(t, []notification.Kind{notification.KindAlertRaised, notification.KindAllClear}, f.notifier.Kinds())
	assert.Equal(t, []string{"dev-1=on", "dev-1=off"}, f.actuator.Calls())

	logs := f.alertLog.Entries()
	require.Len(t, logs, 2)
	directions := []string{logs[0].Direction, logs[1].Direction}
	assert.ElementsMatch(t, []string{DirectionRising, DirectionFalling}, directions)
}

func TestEngine_AlertPayload(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	f.engine.now = func() time.Time { return time.Date(2026, 5, 4, 13, 15, 0, 0, time.UTC) }

	f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, map[string]float64{
		MetricCO2:         1400,
		MetricTemperature: 41.5,
	})
	f.engine.Wait()

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Equal(t, testSystemType, f.notifier.systems[0])
	assert.Equal(t, "Alert raised: high_temperature", msg.Push.Title)
	assert.Contains(t, msg.Push.Body, "Gudang Cikarang / Cold Room / Controller dev-1")
	assert.Contains(t, msg.Push.Body, "temperature: 41.5, co2: 1400")
	assert.Contains(t, msg.Chat.Text, "04 May 2026 13:15:00 UTC")
}

func TestEngine_IgnoresUnmonitoredAndIrrelevant(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	assert.Equal(t, OutcomeIgnored, f.engine.OnSensorReading(t.Context(), "dev-1", "security", temp(99)))
	assert.Equal(t, OutcomeIgnored, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, map[string]float64{"pressure": 2000}))
	assert.Equal(t, OutcomeIgnored, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, nil))
	f.engine.Wait()

	assert.Zero(t, f.devices.calls.Load(), "ignored readings never hit the device store")
	_, ok := f.engine.States().Get("dev-1")
	assert.False(t, ok)
}

func TestEngine_UnresolvedDeviceAborts(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	f.devices.devices["orphan"] = &entities.Device{DeviceID: "orphan", SystemType: testSystemType}

	assert.Equal(t, OutcomeUnresolved, f.engine.OnSensorReading(t.Context(), "ghost", testSystemType, temp(99)))
	assert.Equal(t, OutcomeUnresolved, f.engine.OnSensorReading(t.Context(), "orphan", testSystemType, temp(99)))
	f.engine.Wait()

	assert.Empty(t, f.notifier.Kinds())
	_, ok := f.engine.States().Get("ghost")
	assert.False(t, ok)
	_, ok = f.engine.States().Get("orphan")
	assert.False(t, ok)
}

func TestEngine_StalledLookupReleasesDevice(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	f.engine.resolveTimeout = 50 * time.Millisecond
	f.devices.stall.Store(true)

	start := time.Now()
	assert.Equal(t, OutcomeUnresolved, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45)))
	assert.Less(t, time.Since(start), 2*time.Second)
	_, ok := f.engine.States().Get("dev-1")
	assert.False(t, ok)

	f.devices.stall.Store(false)
	assert.Equal(t, OutcomeRising, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45)))
	f.engine.Wait()
	assert.Equal(t, []notification.Kind{notification.KindAlertRaised}, f.notifier.Kinds())
}

func TestEngine_SideEffectFailuresKeepState(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	f.actuator.err = errors.NewStd("broker down")
	f.notifier.err = errors.NewStd("all channels failed")

	assert.Equal(t, OutcomeRising, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45)))
	f.engine.Wait()

	st, ok := f.engine.States().Get("dev-1")
	require.True(t, ok)
	assert.True(t, st.IsAlertActive)
	assert.Equal(t, OutcomeNoEdge, f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(46)),
		"failed side effects are not retried by later readings")
}

func TestEngine_SkipsActuatorAlreadyInState(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)
	f.devices.setActuator("dev-1", entities.ActuatorOn)

	f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45))
	f.engine.Wait()

	assert.Empty(t, f.actuator.Calls())
	assert.Equal(t, []notification.Kind{notification.KindAlertRaised}, f.notifier.Kinds())
}

func TestEngine_SlowNotificationDoesNotBlockOtherDevices(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t, "dev-1", "dev-2")
	f.notifier.block = make(chan struct{})

	f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45))

	done := make(chan Outcome, 1)
	go func() {
		done <- f.engine.OnSensorReading(t.Context(), "dev-2", testSystemType, temp(45))
	}()
	select {
	case outcome := <-done:
		assert.Equal(t, OutcomeRising, outcome)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("evaluation blocked behind a pending notification")
	}
	close(f.notifier.block)
	f.engine.Wait()
	assert.Len(t, f.notifier.Kinds(), 2)
}

func TestEngine_ConcurrentReadingsFireOnce(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	var (
		wg     sync.WaitGroup
		rising atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45)) == OutcomeRising {
				rising.Add(1)
			}
		}()
	}
	wg.Wait()
	f.engine.Wait()

	assert.Equal(t, int32(1), rising.Load())
	assert.Equal(t, []notification.Kind{notification.KindAlertRaised}, f.notifier.Kinds())
	assert.Len(t, f.actuator.Calls(), 1)
}

func TestEngine_DevicesAreIndependent(t *testing.T) {
	t.Parallel()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("dev-%d", i)
	}
	f := newEngineFixture(t, ids...)

	for _, id := range ids {
		f.engine.OnSensorReading(t.Context(), id, testSystemType, temp(45))
	}
	f.engine.Wait()

	assert.Len(t, f.notifier.Kinds(), len(ids))
	assert.Equal(t, len(ids), f.engine.States().ActiveCount())
}

func TestEngine_StopWaitsForSideEffectsAndCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	devices := newMockDevices("dev-1")
	notifier := &mockNotifier{}
	alertLog := &mockAlertLog{}
	engine := NewEngine(DefaultProfiles(), devices, NewStateStore(nil, logger.NewNop()), logger.NewNop(),
		WithNotifier(notifier), WithAlertLog(alertLog))

	engine.StartHistoryCleanup(30)
	engine.StartHistoryCleanup(7)
	engine.OnSensorReading(t.Context(), "dev-1", testSystemType, temp(45))
	engine.Stop()
	engine.Stop()

	assert.Len(t, notifier.Kinds(), 1)
}

func TestEngine_CleanupHistoryUsesRetention(t *testing.T) {
	t.Parallel()
	f := newEngineFixture(t)

	f.engine.cleanupHistory(30)
	assert.Equal(t, int32(1), f.alertLog.deleted.Load())
}
