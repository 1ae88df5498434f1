// internal/session/session.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/core"
	"github.com/sua-org/safetynet/internal/drivers"
)

var ErrNotConnected = errors.New("session not connected")

// Callbacks são chamados sempre dentro do loop.
type Callbacks struct {
	OnState   func(info core.CameraInfo, state core.ConnectionState, reason string)
	OnMessage func(info core.CameraInfo, raw []byte)
}

// Session é a conexão com uma câmera. Só o Manager mexe nela.
type Session struct {
	info     core.CameraInfo
	state    core.ConnectionState
	since    time.Time
	lastSeen time.Time
	reason   string

	gen    uint64
	conn   drivers.Conn
	cancel context.CancelFunc
}

type Snapshot struct {
	Info     core.CameraInfo      `json:"camera"`
	State    core.ConnectionState `json:"state"`
	Since    time.Time            `json:"since"`
	LastSeen time.Time            `json:"last_seen,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// Manager mantém uma sessão por endereço. Não é thread-safe: todos os
// métodos rodam no loop; goroutines de dial e leitura voltam via post.
type Manager struct {
	ctx    context.Context
	dialer drivers.Dialer
	post   func(func()) bool
	cb     Callbacks
	now    func() time.Time

	sessions map[string]*Session
	gen      uint64
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "session").Logger()
	return &l
}

func NewManager(ctx context.Context, dialer drivers.Dialer, post func(func()) bool, cb Callbacks) *Manager {
	return &Manager{
		ctx:      ctx,
		dialer:   dialer,
		post:     post,
		cb:       cb,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Reconcile abre sessão para câmeras sem conexão viva ou pendente e fecha
// as que saíram do registro. Chamar duas vezes com o mesmo registro não
// gera novas tentativas.
func (m *Manager) Reconcile(cams []core.CameraInfo) (opened, closed int) {
	want := make(map[string]core.CameraInfo, len(cams))
	for _, c := range cams {
		want[c.Address()] = c
	}

	for addr, s := range m.sessions {
		info, ok := want[addr]
		switch {
		case !ok:
			m.close(addr, "camera removed")
			closed++
		case info != s.info:
			logger().Info().Str("camera", info.Name).Str("addr", addr).Msg("camera config changed, restarting session")
			m.close(addr, "config changed")
			closed++
		}
	}

	for _, c := range cams {
		if s, ok := m.sessions[c.Address()]; ok && s.state != core.StateFailed {
			continue
		}
		m.open(c)
		opened++
	}
	return opened, closed
}

func (m *Manager) open(info core.CameraInfo) {
	addr := info.Address()
	if old, ok := m.sessions[addr]; ok {
		m.release(old)
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(m.ctx)
	s := &Session{info: info, gen: gen, cancel: cancel}
	m.sessions[addr] = s
	m.setState(s, core.StateConnecting, "")

	logger().Debug().Str("camera", info.Name).Str("addr", addr).Msg("dialing")
	go func() {
		conn, err := m.dialer.Dial(ctx, info)
		posted := m.post(func() { m.dialed(addr, gen, conn, err) })
		if !posted && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) dialed(addr string, gen uint64, conn drivers.Conn, err error) {
	s, ok := m.sessions[addr]
	if !ok || s.gen != gen {
		// sessão removida ou substituída enquanto discava
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		logger().Warn().Err(err).Str("camera", s.info.Name).Str("addr", addr).Msg("connection failed")
		m.release(s)
		m.setState(s, core.StateFailed, err.Error())
		return
	}

	s.conn = conn
	m.setState(s, core.StateConnected, "")
	logger().Info().Str("camera", s.info.Name).Str("addr", addr).Msg("connected")
	go m.readPump(addr, gen, conn)
}

// readPump é a única goroutine lendo a conexão: a ordem dos frames é
// preservada pela ordem dos posts.
func (m *Manager) readPump(addr string, gen uint64, conn drivers.Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			m.post(func() { m.lost(addr, gen, err) })
			return
		}
		if !m.post(func() { m.received(addr, gen, raw) }) {
			_ = conn.Close()
			return
		}
	}
}

func (m *Manager) received(addr string, gen uint64, raw []byte) {
	s, ok := m.sessions[addr]
	if !ok || s.gen != gen {
		return
	}
	s.lastSeen = m.now()
	if m.cb.OnMessage != nil {
		m.cb.OnMessage(s.info, raw)
	}
}

func (m *Manager) lost(addr string, gen uint64, err error) {
	s, ok := m.sessions[addr]
	if !ok || s.gen != gen {
		return
	}
	m.release(s)

	if errors.Is(err, drivers.ErrClosed) {
		logger().Info().Str("camera", s.info.Name).Str("addr", addr).Msg("remote closed connection")
		delete(m.sessions, addr)
		m.setState(s, core.StateDisconnected, "remote closed")
		return
	}
	logger().Warn().Err(err).Str("camera", s.info.Name).Str("addr", addr).Msg("transport error")
	m.setState(s, core.StateFailed, err.Error())
}

func (m *Manager) close(addr, reason string) {
	s, ok := m.sessions[addr]
	if !ok {
		return
	}
	m.release(s)
	delete(m.sessions, addr)
	logger().Info().Str("camera", s.info.Name).Str("addr", addr).Str("reason", reason).Msg("session closed")
	m.setState(s, core.StateDisconnected, reason)
}

func (m *Manager) release(s *Session) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (m *Manager) setState(s *Session, state core.ConnectionState, reason string) {
	s.state = state
	s.reason = reason
	s.since = m.now()
	if m.cb.OnState != nil {
		m.cb.OnState(s.info, state, reason)
	}
}

// Close encerra a sessão de um endereço (remoção da câmera).
func (m *Manager) Close(addr string) {
	m.close(addr, "camera removed")
}

func (m *Manager) CloseAll() {
	for addr := range m.sessions {
		m.close(addr, "shutdown")
	}
}

// Send serializa o comando e escreve na conexão. Sessão fora de
// Connected retorna ErrNotConnected e nada é enviado.
func (m *Manager) Send(addr string, cmd core.Command) error {
	s, ok := m.sessions[addr]
	if !ok || s.state != core.StateConnected || s.conn == nil {
		logger().Warn().Str("addr", addr).Str("command", cmd.Type).Msg("send on non-connected session dropped")
		return fmt.Errorf("send %s to %s: %w", cmd.Type, addr, ErrNotConnected)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.Type, err)
	}
	if err := s.conn.WriteMessage(payload); err != nil {
		return fmt.Errorf("send %s to %s: %w", cmd.Type, s.info.Name, err)
	}
	logger().Debug().Str("camera", s.info.Name).RawJSON("command", payload).Msg("command sent")
	return nil
}

// State retorna Disconnected para endereços sem sessão.
func (m *Manager) State(addr string) core.ConnectionState {
	if s, ok := m.sessions[addr]; ok {
		return s.state
	}
	return core.StateDisconnected
}

// Has diz se ainda existe sessão (em qualquer estado) para o endereço.
func (m *Manager) Has(addr string) bool {
	_, ok := m.sessions[addr]
	return ok
}

func (m *Manager) Len() int { return len(m.sessions) }

func (m *Manager) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Snapshot{
			Info:     s.info,
			State:    s.state,
			Since:    s.since,
			LastSeen: s.lastSeen,
			Reason:   s.reason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Name < out[j].Info.Name })
	return out
}
