// internal/logstore/merge.go
package logstore

import (
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/core"
)

// MergeBatch conta as buscas de histórico pendentes. Só completa quando
// todas as esperadas voltaram, com sucesso ou falha; falha conta como
// zero entradas.
type MergeBatch struct {
	expected int
	received int
	failures int
	entries  []core.LogEntry
}

func NewMergeBatch(expected int) *MergeBatch {
	return &MergeBatch{expected: expected}
}

// Complete registra o resultado de uma busca e retorna true exatamente na
// última esperada.
func (b *MergeBatch) Complete(source string, entries []core.LogEntry, err error) bool {
	if b.Done() {
		log.Warn().Str("component", "logstore").Str("source", source).Msg("history result after merge completed, ignoring")
		return false
	}
	b.received++
	if err != nil {
		b.failures++
		log.Warn().Str("component", "logstore").Str("source", source).Err(err).Msg("history fetch failed")
	} else {
		b.entries = append(b.entries, entries...)
	}
	return b.Done()
}

func (b *MergeBatch) Done() bool { return b.received >= b.expected }

func (b *MergeBatch) Expected() int { return b.expected }

func (b *MergeBatch) Received() int { return b.received }

func (b *MergeBatch) Failures() int { return b.failures }

// Entries devolve o que foi coletado, já ordenado do mais novo para o mais antigo.
func (b *MergeBatch) Entries() []core.LogEntry {
	out := make([]core.LogEntry, len(b.entries))
	copy(out, b.entries)
	SortNewestFirst(out)
	return out
}
