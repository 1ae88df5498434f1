// internal/probe/probe.go
package probe

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/core"
)

// DefaultTimeout é o prazo fixo de resposta de uma rodada.
const DefaultTimeout = 5 * time.Second

type State string

const (
	StateIdle      State = "idle"
	StateAwaiting  State = "awaiting"
	StateResponded State = "responded"
	StateTimedOut  State = "timed_out"
)

// Sender é a visão que o prober tem das sessões.
type Sender interface {
	State(address string) core.ConnectionState
	Send(address string, cmd core.Command) error
}

// Scheduler agenda fn depois de d e devolve o cancelamento. fn precisa
// rodar no loop do núcleo.
type Scheduler func(d time.Duration, fn func()) (cancel func())

type target struct {
	info   core.CameraInfo
	state  State
	cancel func()
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "probe").Logger()
	return &l
}

// Prober controla as rodadas de health-check:
// Idle -> Awaiting -> (Responded | TimedOut).
type Prober struct {
	sender    Sender
	schedule  Scheduler
	timeout   time.Duration
	onTimeout func(core.CameraInfo)

	round   uint64
	targets map[string]*target
}

func New(sender Sender, schedule Scheduler, timeout time.Duration, onTimeout func(core.CameraInfo)) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		sender:    sender,
		schedule:  schedule,
		timeout:   timeout,
		onTimeout: onTimeout,
		targets:   make(map[string]*target),
	}
}

// BeginRound descarta a rodada anterior e manda request_stm_status para
// cada câmera conectada. Câmeras fora do ar não recebem probe nem timeout.
func (p *Prober) BeginRound(cameras []core.CameraInfo) (probed []string) {
	for _, t := range p.targets {
		if t.cancel != nil {
			t.cancel()
		}
	}
	p.targets = make(map[string]*target)
	p.round++
	round := p.round

	for _, cam := range cameras {
		if p.sender.State(cam.Address()) != core.StateConnected {
			logger().Debug().Str("camera", cam.Name).Msg("skipping probe, session not connected")
			continue
		}
		if err := p.sender.Send(cam.Address(), core.StatusRequestCommand()); err != nil {
			logger().Warn().Err(err).Str("camera", cam.Name).Msg("probe send failed")
		}
		t := &target{info: cam, state: StateAwaiting}
		name := cam.Name
		t.cancel = p.schedule(p.timeout, func() { p.expire(round, name) })
		p.targets[name] = t
		probed = append(probed, name)
	}
	logger().Info().Uint64("round", round).Int("probed", len(probed)).Msg("health round started")
	return probed
}

// RecordResponse marca a câmera como respondida. Depois do timeout só
// registra, sem sinal de "recuperado".
func (p *Prober) RecordResponse(camera string) {
	t, ok := p.targets[camera]
	if !ok {
		return
	}
	if t.state == StateAwaiting && t.cancel != nil {
		t.cancel()
	}
	t.state = StateResponded
}

func (p *Prober) expire(round uint64, camera string) {
	if round != p.round {
		return
	}
	t, ok := p.targets[camera]
	if !ok || t.state != StateAwaiting {
		return
	}
	t.state = StateTimedOut
	logger().Warn().Str("camera", camera).Dur("timeout", p.timeout).Msg("health probe timed out")
	if p.onTimeout != nil {
		p.onTimeout(t.info)
	}
}

func (p *Prober) State(camera string) State {
	if t, ok := p.targets[camera]; ok {
		return t.state
	}
	return StateIdle
}

// Forget cancela o timeout pendente de uma câmera removida.
func (p *Prober) Forget(camera string) {
	if t, ok := p.targets[camera]; ok {
		if t.cancel != nil {
			t.cancel()
		}
		delete(p.targets, camera)
	}
}
