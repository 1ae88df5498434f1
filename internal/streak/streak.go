// internal/streak/streak.go
package streak

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// EscalationThreshold é o número de violações seguidas que dispara alerta.
const EscalationThreshold = 4

const (
	DefaultDedupSize = 4096
	DefaultDedupTTL  = 10 * time.Minute
)

// Tracker guarda o estado por câmera: sequência de violações, chaves de
// dedup (blur) e último status de anomalia. Só o loop chama.
type Tracker struct {
	counters   map[string]int
	lastStatus map[string]string
	seen       *expirable.LRU[string, struct{}]
}

func New(dedupSize int, dedupTTL time.Duration) *Tracker {
	if dedupSize <= 0 {
		dedupSize = DefaultDedupSize
	}
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &Tracker{
		counters:   make(map[string]int),
		lastStatus: make(map[string]string),
		seen:       expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
	}
}

// RecordViolation incrementa a sequência. Ao chegar em EscalationThreshold
// retorna escalated=true e zera o contador, então o alerta se repete a cada
// quarta violação seguida.
func (t *Tracker) RecordViolation(camera string) (streak int, escalated bool) {
	t.counters[camera]++
	streak = t.counters[camera]
	if streak == EscalationThreshold {
		t.counters[camera] = 0
		return streak, true
	}
	return streak, false
}

func (t *Tracker) RecordClear(camera string) {
	t.counters[camera] = 0
}

func (t *Tracker) Streak(camera string) int {
	return t.counters[camera]
}

// IsDuplicate devolve true se a chave já foi vista (sem reinserir);
// senão registra e devolve false.
func (t *Tracker) IsDuplicate(key string) bool {
	if t.seen.Contains(key) {
		return true
	}
	t.seen.Add(key, struct{}{})
	return false
}

// DedupKey monta a chave câmera+timestamp.
func DedupKey(camera, timestamp string) string {
	return camera + "|" + timestamp
}

// StatusChanged registra o status e diz se houve transição. O estado
// inicial é "cleared": um primeiro "cleared" não é transição.
func (t *Tracker) StatusChanged(camera, status string) bool {
	prev, ok := t.lastStatus[camera]
	if !ok {
		prev = "cleared"
	}
	t.lastStatus[camera] = status
	return prev != status
}

// Forget descarta o estado de uma câmera removida.
func (t *Tracker) Forget(camera string) {
	delete(t.counters, camera)
	delete(t.lastStatus, camera)
}
