package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/safetynet/internal/core"
	"github.com/sua-org/safetynet/internal/registry"
	"github.com/sua-org/safetynet/internal/supervisor"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	pubs     []published
	handlers map[string]func(string, []byte)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[string]func(string, []byte){}}
}

func (f *fakeBroker) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic, retained, payload})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) handler(topic string) func(string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func (f *fakeBroker) find(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pubs {
		if p.topic == topic {
			return p, true
		}
	}
	return published{}, false
}

type fakeCore struct {
	notes   chan supervisor.Notification
	added   []core.CameraInfo
	removed []string
	modes   []string
}

func (c *fakeCore) Subscribe(int) (<-chan supervisor.Notification, func()) {
	return c.notes, func() {}
}

func (c *fakeCore) AddCamera(_ context.Context, info core.CameraInfo) (core.CameraInfo, error) {
	if info.IP == "" {
		return info, registry.ErrMissingField
	}
	c.added = append(c.added, info)
	return info, nil
}

func (c *fakeCore) RemoveCamera(_ context.Context, name string, _ bool) error {
	c.removed = append(c.removed, name)
	return nil
}

func (c *fakeCore) SetMode(_ context.Context, camera, mode string) (string, error) {
	c.modes = append(c.modes, camera+":"+mode)
	return "req-42", nil
}

func (c *fakeCore) StartHealthRound(context.Context) ([]string, error) {
	return []string{"gate"}, nil
}

func (c *fakeCore) Reconcile(context.Context) error { return nil }

func (c *fakeCore) ClearStreak(_ context.Context, camera string) error {
	if camera == "" {
		return errors.New("camera required")
	}
	return nil
}

func (c *fakeCore) Status(context.Context) (supervisor.Status, error) {
	return supervisor.Status{Collector: "safetynet", Status: "online", Cameras: 2}, nil
}

func TestExecute(t *testing.T) {
	fc := &fakeCore{}
	b := New(newFakeBroker(), fc, "safetynet/", 0)
	ctx := context.Background()

	res := b.Execute(ctx, ActionRegister, Command{Camera: "gate", IP: "10.0.0.5", Port: 8555})
	assert.True(t, res.OK)
	assert.Equal(t, []core.CameraInfo{{Name: "gate", IP: "10.0.0.5", Port: 8555}}, fc.added)

	res = b.Execute(ctx, ActionRegister, Command{Camera: "dock"})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)

	res = b.Execute(ctx, ActionSetMode, Command{Camera: "gate", Mode: "fall"})
	assert.True(t, res.OK)
	assert.Equal(t, "req-42", res.RequestID)

	res = b.Execute(ctx, ActionHealthCheck, Command{})
	assert.Equal(t, []string{"gate"}, res.Probed)

	res = b.Execute(ctx, "reboot", Command{})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, ErrUnknownAction.Error())
}

func TestTopics(t *testing.T) {
	b := New(newFakeBroker(), &fakeCore{}, "safetynet", 0)
	assert.Equal(t, "safetynet/cameras/main_gate/escalation",
		b.NotificationTopic(supervisor.Notification{Kind: supervisor.KindEscalation, Camera: "main gate"}))
	assert.Equal(t, "safetynet/events/logs_merged",
		b.NotificationTopic(supervisor.Notification{Kind: supervisor.KindLogsMerged}))
	assert.Equal(t, "safetynet/collector/status", b.StatusTopic())
}

func TestRunRelaysNotificationsAndCommands(t *testing.T) {
	broker := newFakeBroker()
	fc := &fakeCore{notes: make(chan supervisor.Notification, 4)}
	b := New(broker, fc, "safetynet", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	assert.Eventually(t, func() bool { return broker.handler("safetynet/cmd/+") != nil }, time.Second, 5*time.Millisecond)

	fc.notes <- supervisor.Notification{Kind: supervisor.KindConnectionState, Camera: "gate", State: core.StateConnected}
	assert.Eventually(t, func() bool {
		p, ok := broker.find("safetynet/cameras/gate/connection_state")
		return ok && p.retained
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := broker.find("safetynet/collector/status")
		return ok
	}, time.Second, 5*time.Millisecond)

	broker.handler("safetynet/cmd/+")("safetynet/cmd/remove", []byte(`{"camera":"dock","purge_logs":true}`))
	p, ok := broker.find("safetynet/cmd/remove/result")
	require.True(t, ok)
	var res Result
	require.NoError(t, json.Unmarshal(p.payload, &res))
	assert.True(t, res.OK)
	assert.Equal(t, []string{"dock"}, fc.removed)

	broker.handler("safetynet/cmd/+")("safetynet/cmd/set_mode", []byte(`{not json`))
	p, ok = broker.find("safetynet/cmd/set_mode/result")
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(p.payload, &res))
	assert.False(t, res.OK)

	cancel()
	assert.NoError(t, <-done)
}
