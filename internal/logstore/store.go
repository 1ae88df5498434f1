// internal/logstore/store.go
package logstore

import (
	"math"
	"sort"

	"github.com/sua-org/safetynet/internal/core"
)

// DefaultCapacity é o tamanho máximo do feed.
const DefaultCapacity = 100

// Store é o feed de logs, mais novo primeiro. Append só faz prepend:
// depois do merge inicial a ordem por timestamp não é refeita.
type Store struct {
	capacity int
	entries  []core.LogEntry
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, entries: make([]core.LogEntry, 0, capacity+1)}
}

// Append insere na frente e descarta a entrada mais antiga se passar da
// capacidade. Retorna a entrada despejada, se houver.
func (s *Store) Append(e core.LogEntry) (evicted *core.LogEntry) {
	s.entries = append(s.entries, core.LogEntry{})
	copy(s.entries[1:], s.entries)
	s.entries[0] = e
	if len(s.entries) > s.capacity {
		last := s.entries[len(s.entries)-1]
		s.entries = s.entries[:s.capacity]
		return &last
	}
	return nil
}

// BulkMerge junta entradas (histórico) ao conteúdo atual, reordena tudo do
// mais novo para o mais antigo e corta na capacidade. Entradas idênticas
// (câmera, função, timestamp e evento) entram uma vez só: o mesmo
// histórico pode ser buscado de novo quando a câmera volta ao registro.
func (s *Store) BulkMerge(entries []core.LogEntry) {
	all := make([]core.LogEntry, 0, len(s.entries)+len(entries))
	seen := make(map[entryKey]struct{}, cap(all))
	for _, batch := range [][]core.LogEntry{s.entries, entries} {
		for _, e := range batch {
			k := keyOf(e)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, e)
		}
	}
	SortNewestFirst(all)
	if len(all) > s.capacity {
		all = all[:s.capacity]
	}
	s.entries = all
}

type entryKey struct {
	camera    string
	function  core.Function
	timestamp string
	event     string
}

func keyOf(e core.LogEntry) entryKey {
	return entryKey{camera: e.CameraName, function: e.Function, timestamp: e.Timestamp, event: e.Event}
}

// SortNewestFirst ordena por timestamp decrescente. Timestamps inválidos
// viram zero time e vão para o fim. Empates mantêm a ordem de entrada.
func SortNewestFirst(entries []core.LogEntry) {
	type keyed struct {
		at    int64
		entry core.LogEntry
	}
	tmp := make([]keyed, len(entries))
	for i, e := range entries {
		at := int64(math.MinInt64)
		if t := e.Time(); !t.IsZero() {
			at = t.UnixNano()
		}
		tmp[i] = keyed{at: at, entry: e}
	}
	sort.SliceStable(tmp, func(a, b int) bool { return tmp[a].at > tmp[b].at })
	for i := range tmp {
		entries[i] = tmp[i].entry
	}
}

func (s *Store) Len() int { return len(s.entries) }

func (s *Store) Capacity() int { return s.capacity }

// Entries devolve uma cópia do feed.
func (s *Store) Entries() []core.LogEntry {
	out := make([]core.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Filter é a consulta do navegador de histórico: por câmera e categoria.
type Filter struct {
	Camera   string
	Function core.Function
	Limit    int
}

func (s *Store) Query(f Filter) []core.LogEntry {
	out := make([]core.LogEntry, 0)
	for _, e := range s.entries {
		if f.Camera != "" && e.CameraName != f.Camera {
			continue
		}
		if f.Function != "" && e.Function != f.Function {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// RemoveCamera tira do feed os logs de uma câmera removida.
func (s *Store) RemoveCamera(camera string) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.CameraName == camera {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}
