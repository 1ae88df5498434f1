// internal/bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/core"
	"github.com/sua-org/safetynet/internal/supervisor"
)

// Broker é o pedaço do mqttclient que a ponte usa.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Core é a API do supervisor exposta para a UI.
type Core interface {
	Subscribe(buffer int) (<-chan supervisor.Notification, func())
	AddCamera(ctx context.Context, info core.CameraInfo) (core.CameraInfo, error)
	RemoveCamera(ctx context.Context, name string, purgeLogs bool) error
	SetMode(ctx context.Context, camera, mode string) (string, error)
	StartHealthRound(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context) error
	ClearStreak(ctx context.Context, camera string) error
	Status(ctx context.Context) (supervisor.Status, error)
}

const (
	ActionRegister    = "register"
	ActionRemove      = "remove"
	ActionSetMode     = "set_mode"
	ActionHealthCheck = "health_check"
	ActionReconcile   = "reconcile"
	ActionClearStreak = "clear_streak"
)

var ErrUnknownAction = errors.New("unknown action")

type Bridge struct {
	broker         Broker
	core           Core
	baseTopic      string
	statusInterval time.Duration
	opTimeout      time.Duration
}

// Command é o payload aceito em <base>/cmd/<action>.
type Command struct {
	Camera    string `json:"camera,omitempty"`
	IP        string `json:"ip,omitempty"`
	Port      int    `json:"port,omitempty"`
	Mode      string `json:"mode,omitempty"`
	PurgeLogs bool   `json:"purge_logs,omitempty"`
}

type Result struct {
	Action    string   `json:"action"`
	OK        bool     `json:"ok"`
	Error     string   `json:"error,omitempty"`
	Camera    string   `json:"camera,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	Probed    []string `json:"probed,omitempty"`
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "bridge").Logger()
	return &l
}

func New(broker Broker, c Core, baseTopic string, statusInterval time.Duration) *Bridge {
	return &Bridge{
		broker:         broker,
		core:           c,
		baseTopic:      strings.TrimSuffix(baseTopic, "/"),
		statusInterval: statusInterval,
		opTimeout:      5 * time.Second,
	}
}

// Run assina os comandos da UI e republica as notificações até o ctx
// terminar.
func (b *Bridge) Run(ctx context.Context) error {
	cmdTopic := b.baseTopic + "/cmd/+"
	logger().Info().Str("topic", cmdTopic).Msg("subscribing to command topic")
	if err := b.broker.Subscribe(cmdTopic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe error: %w", err)
	}

	notes, cancel := b.core.Subscribe(256)
	defer cancel()

	var tick <-chan time.Time
	if b.statusInterval > 0 {
		ticker := time.NewTicker(b.statusInterval)
		defer ticker.Stop()
		tick = ticker.C
		logger().Info().Dur("interval", b.statusInterval).Msg("status loop iniciado")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			b.publishNotification(n)
		case <-tick:
			b.publishStatus(ctx)
		}
	}
}

func (b *Bridge) publishNotification(n supervisor.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logger().Error().Err(err).Str("kind", string(n.Kind)).Msg("error marshaling notification")
		return
	}

	topic := b.NotificationTopic(n)
	// estado da conexão fica retido para a UI que chega depois
	retained := n.Kind == supervisor.KindConnectionState
	if err := b.broker.Publish(topic, 1, retained, payload); err != nil {
		logger().Warn().Err(err).Str("topic", topic).Msg("error publishing notification")
	}
}

func (b *Bridge) publishStatus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	st, err := b.core.Status(ctx)
	if err != nil {
		logger().Warn().Err(err).Msg("status indisponível")
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		logger().Error().Err(err).Msg("marshal collector status")
		return
	}
	topic := b.StatusTopic()
	if err := b.broker.Publish(topic, 1, true, payload); err != nil {
		logger().Warn().Err(err).Str("topic", topic).Msg("publish collector status")
		return
	}
	logger().Debug().Str("topic", topic).Msg("collector online")
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	action := topic[strings.LastIndex(topic, "/")+1:]

	var cmd Command
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logger().Warn().Err(err).Str("topic", topic).Msg("invalid JSON on command topic")
			b.reply(Result{Action: action, Error: "invalid JSON"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	res := b.Execute(ctx, action, cmd)
	b.reply(res)
}

// Execute roda um comando da UI contra o núcleo.
func (b *Bridge) Execute(ctx context.Context, action string, cmd Command) Result {
	res := Result{Action: action, Camera: cmd.Camera}
	var err error

	switch action {
	case ActionRegister:
		var added core.CameraInfo
		added, err = b.core.AddCamera(ctx, core.CameraInfo{Name: cmd.Camera, IP: cmd.IP, Port: cmd.Port})
		res.Camera = added.Name
	case ActionRemove:
		err = b.core.RemoveCamera(ctx, cmd.Camera, cmd.PurgeLogs)
	case ActionSetMode:
		res.RequestID, err = b.core.SetMode(ctx, cmd.Camera, cmd.Mode)
	case ActionHealthCheck:
		res.Probed, err = b.core.StartHealthRound(ctx)
	case ActionReconcile:
		err = b.core.Reconcile(ctx)
	case ActionClearStreak:
		err = b.core.ClearStreak(ctx, cmd.Camera)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if err != nil {
		logger().Warn().Err(err).Str("action", action).Str("camera", cmd.Camera).Msg("command failed")
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

func (b *Bridge) reply(res Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s/cmd/%s/result", b.baseTopic, res.Action)
	if err := b.broker.Publish(topic, 1, false, payload); err != nil {
		logger().Warn().Err(err).Str("topic", topic).Msg("error publishing command result")
	}
}

// NotificationTopic: <base>/cameras/<camera>/<kind>, ou <base>/events/<kind>
// para notificações sem câmera (logs_merged).
func (b *Bridge) NotificationTopic(n supervisor.Notification) string {
	if n.Camera == "" {
		return fmt.Sprintf("%s/events/%s", b.baseTopic, n.Kind)
	}
	return fmt.Sprintf("%s/cameras/%s/%s", b.baseTopic, topicSegment(n.Camera), n.Kind)
}

func (b *Bridge) StatusTopic() string {
	return b.baseTopic + "/collector/status"
}

func topicSegment(s string) string {
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")
	return r.Replace(strings.TrimSpace(s))
}
