// internal/supervisor/notify.go
package supervisor

import (
	"time"

	"github.com/sua-org/safetynet/internal/core"
)

type Kind string

const (
	KindConnectionState  Kind = "connection_state"
	KindLogAppended      Kind = "log_appended"
	KindLogsMerged       Kind = "logs_merged"
	KindEscalation       Kind = "escalation"
	KindCommandAck       Kind = "command_ack"
	KindCommandRejected  Kind = "command_rejected"
	KindNeedsAttention   Kind = "needs_attention"
	KindHealthStatus     Kind = "health_status"
	KindSnapshotArchived Kind = "snapshot_archived"
)

// Notification é o que a camada de UI consome. Só os campos do Kind
// vêm preenchidos.
type Notification struct {
	Kind        Kind                 `json:"kind"`
	Camera      string               `json:"camera,omitempty"`
	State       core.ConnectionState `json:"state,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Entry       *core.LogEntry       `json:"entry,omitempty"`
	Entries     []core.LogEntry      `json:"entries,omitempty"`
	Streak      int                  `json:"streak,omitempty"`
	RequestID   string               `json:"request_id,omitempty"`
	Mode        string               `json:"mode,omitempty"`
	Message     string               `json:"message,omitempty"`
	Health      *core.HealthStatus   `json:"health,omitempty"`
	ArchivedURL string               `json:"archived_url,omitempty"`
	At          time.Time            `json:"at"`
}

// Subscribe devolve um canal de notificações e a função para cancelar.
// Entrega não bloqueia: com o buffer cheio a notificação é descartada.
func (s *Supervisor) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Notification, buffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Supervisor) notify(n Notification) {
	n.At = s.now()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- n:
			s.metrics.Notifications.WithLabelValues(string(n.Kind), "delivered").Inc()
		default:
			s.metrics.Notifications.WithLabelValues(string(n.Kind), "dropped").Inc()
			logger().Warn().Int("subscriber", id).Str("kind", string(n.Kind)).Msg("subscriber buffer full, notification dropped")
		}
	}
}

func (s *Supervisor) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
