// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/sua-org/safetynet/internal/classifier"
	"github.com/sua-org/safetynet/internal/core"
	"github.com/sua-org/safetynet/internal/drivers"
	"github.com/sua-org/safetynet/internal/history"
	"github.com/sua-org/safetynet/internal/logstore"
	"github.com/sua-org/safetynet/internal/loop"
	"github.com/sua-org/safetynet/internal/mediamtx"
	"github.com/sua-org/safetynet/internal/metrics"
	"github.com/sua-org/safetynet/internal/probe"
	"github.com/sua-org/safetynet/internal/registry"
	"github.com/sua-org/safetynet/internal/session"
	"github.com/sua-org/safetynet/internal/streak"
)

var ErrInvalidMode = errors.New("invalid mode")

// máximo de comandos aguardando ack por câmera
const maxPending = 16

// uploads de snapshot simultâneos; acima disso o snapshot fica só na câmera
const DefaultArchiveWorkers = 4

// HistorySource busca o histórico das câmeras; onResult roda fora do loop.
type HistorySource interface {
	FetchAll(ctx context.Context, cams []core.CameraInfo, onResult func(history.Result))
}

type Archiver interface {
	Archive(ctx context.Context, e core.LogEntry) (string, error)
}

type ProxyConfig interface {
	Sync(cameras []core.CameraInfo) error
}

type Deps struct {
	Dialer       drivers.Dialer
	History      HistorySource
	Registry     *registry.Registry
	RegistryFile string
	Classifier   *classifier.Classifier
	Metrics      *metrics.Metrics
	Archiver     Archiver
	MediaMTX     ProxyConfig

	ArchiveWorkers int

	ProbeTimeout time.Duration
	DedupSize    int
	DedupTTL     time.Duration

	// Scheduler dos timeouts do probe; nil usa time.AfterFunc + loop.
	Scheduler probe.Scheduler
}

type pendingCommand struct {
	id     string
	mode   string
	sentAt time.Time
}

// Supervisor é o núcleo: dono do loop e de todos os componentes. Todo
// estado abaixo só é tocado dentro do loop.
type Supervisor struct {
	loop       *loop.Loop
	baseCtx    context.Context
	cancelBase context.CancelFunc
	now        func() time.Time

	reg          *registry.Registry
	registryFile string
	sessions     *session.Manager
	cls          *classifier.Classifier
	streaks      *streak.Tracker
	prober       *probe.Prober
	store        *logstore.Store
	history      HistorySource
	archiver     Archiver
	archives     errgroup.Group
	mtx          ProxyConfig
	metrics      *metrics.Metrics
	proc         *process.Process

	pending map[string][]pendingCommand
	batches map[uint64]*logstore.MergeBatch
	batchID uint64

	subsMu  sync.Mutex
	subs    map[int]chan Notification
	nextSub int
}

// logger é resolvido a cada uso para herdar o log.Logger configurado no main.
func logger() *zerolog.Logger {
	l := log.With().Str("component", "supervisor").Logger()
	return &l
}

func New(d Deps) *Supervisor {
	if d.Registry == nil {
		d.Registry = registry.New()
	}
	if d.Classifier == nil {
		d.Classifier = classifier.New()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		loop:         loop.New(0),
		baseCtx:      baseCtx,
		cancelBase:   cancel,
		now:          time.Now,
		reg:          d.Registry,
		registryFile: d.RegistryFile,
		cls:          d.Classifier,
		streaks:      streak.New(d.DedupSize, d.DedupTTL),
		store:        logstore.New(logstore.DefaultCapacity),
		history:      d.History,
		archiver:     d.Archiver,
		mtx:          d.MediaMTX,
		metrics:      d.Metrics,
		proc:         newProcessHandle(),
		pending:      make(map[string][]pendingCommand),
		batches:      make(map[uint64]*logstore.MergeBatch),
		subs:         make(map[int]chan Notification),
	}

	s.sessions = session.NewManager(baseCtx, d.Dialer, s.loop.Post, session.Callbacks{
		OnState:   s.handleState,
		OnMessage: s.handleMessage,
	})

	schedule := d.Scheduler
	if schedule == nil {
		schedule = s.afterFunc
	}
	s.prober = probe.New(s.sessions, schedule, d.ProbeTimeout, s.handleProbeTimeout)

	if d.ArchiveWorkers <= 0 {
		d.ArchiveWorkers = DefaultArchiveWorkers
	}
	s.archives.SetLimit(d.ArchiveWorkers)

	// primeira tarefa da fila: nenhuma chamada da API roda antes dela
	s.loop.Post(s.startup)
	return s
}

func (s *Supervisor) startup() {
	cams := s.reg.List()
	logger().Info().Int("cameras", len(cams)).Msg("supervisor started")
	s.metrics.Cameras.Set(float64(len(cams)))
	s.reconcile()
	s.startMerge(cams)
	s.syncProxy(cams)
}

func (s *Supervisor) afterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { s.loop.Post(fn) })
	return func() { t.Stop() }
}

// Run processa o loop até o ctx ser cancelado. A primeira tarefa é a
// partida enfileirada em New (conectar câmeras, merge do histórico).
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.cancelBase()

	s.loop.Run(ctx)

	// loop parado: ninguém mais mexe no estado
	logger().Info().Msg("context canceled, closing all sessions")
	s.sessions.CloseAll()
	s.closeSubscribers()
	s.cancelBase()
	_ = s.archives.Wait()
	return nil
}

// Done fecha quando Run termina.
func (s *Supervisor) Done() <-chan struct{} { return s.loop.Done() }

// ---- API para a UI (qualquer goroutine) ----

func (s *Supervisor) AddCamera(ctx context.Context, info core.CameraInfo) (core.CameraInfo, error) {
	var (
		added core.CameraInfo
		opErr error
	)
	err := s.loop.Do(ctx, func() {
		added, opErr = s.reg.Add(info)
		if opErr != nil {
			return
		}
		logger().Info().Str("camera", added.Name).Str("addr", added.Address()).Msg("camera registered")
		s.registryChanged()
		s.reconcile()
		s.startMerge([]core.CameraInfo{added})
	})
	if err != nil {
		return added, err
	}
	return added, opErr
}

// RemoveCamera derruba a sessão e o estado da câmera. purgeLogs também
// remove as entradas dela do log.
func (s *Supervisor) RemoveCamera(ctx context.Context, name string, purgeLogs bool) error {
	var opErr error
	err := s.loop.Do(ctx, func() {
		removed, err := s.reg.Remove(name)
		if err != nil {
			opErr = err
			return
		}
		s.sessions.Close(removed.Address())
		s.streaks.Forget(removed.Name)
		s.prober.Forget(removed.Name)
		delete(s.pending, removed.Name)
		if purgeLogs {
			n := s.store.RemoveCamera(removed.Name)
			s.metrics.StoredLogs.Set(float64(s.store.Len()))
			logger().Info().Str("camera", removed.Name).Int("entries", n).Msg("logs purged")
		}
		logger().Info().Str("camera", removed.Name).Msg("camera removed")
		s.registryChanged()
		s.updateSessionMetrics()
	})
	if err != nil {
		return err
	}
	return opErr
}

// Reconcile reabre sessões que caíram ou falharam.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	return s.loop.Do(ctx, s.reconcile)
}

// SetMode manda set_mode com um request_id novo e o deixa pendente até
// o mode_change_ack.
func (s *Supervisor) SetMode(ctx context.Context, camera, mode string) (string, error) {
	if !core.ValidMode(mode) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	var (
		requestID string
		opErr     error
	)
	err := s.loop.Do(ctx, func() {
		cam, ok := s.reg.Get(camera)
		if !ok {
			opErr = fmt.Errorf("camera %q: %w", camera, registry.ErrNotFound)
			return
		}
		id := uuid.NewString()
		if err := s.sessions.Send(cam.Address(), core.SetModeCommand(mode, id)); err != nil {
			opErr = err
			return
		}
		queue := append(s.pending[cam.Name], pendingCommand{id: id, mode: mode, sentAt: s.now()})
		if len(queue) > maxPending {
			logger().Warn().Str("camera", cam.Name).Str("request_id", queue[0].id).Msg("pending command dropped without ack")
			queue = queue[1:]
		}
		s.pending[cam.Name] = queue
		requestID = id
		logger().Info().Str("camera", cam.Name).Str("mode", mode).Str("request_id", id).Msg("mode change requested")
	})
	if err != nil {
		return "", err
	}
	return requestID, opErr
}

// StartHealthRound dispara uma rodada de request_stm_status.
func (s *Supervisor) StartHealthRound(ctx context.Context) ([]string, error) {
	var probed []string
	err := s.loop.Do(ctx, func() {
		probed = s.prober.BeginRound(s.reg.List())
	})
	return probed, err
}

// ClearStreak zera a sequência de violações (alerta reconhecido na UI).
func (s *Supervisor) ClearStreak(ctx context.Context, camera string) error {
	var opErr error
	err := s.loop.Do(ctx, func() {
		if _, ok := s.reg.Get(camera); !ok {
			opErr = fmt.Errorf("camera %q: %w", camera, registry.ErrNotFound)
			return
		}
		s.streaks.RecordClear(camera)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Supervisor) Logs(ctx context.Context, f logstore.Filter) ([]core.LogEntry, error) {
	var out []core.LogEntry
	err := s.loop.Do(ctx, func() { out = s.store.Query(f) })
	return out, err
}

func (s *Supervisor) Cameras(ctx context.Context) ([]core.CameraInfo, error) {
	var out []core.CameraInfo
	err := s.loop.Do(ctx, func() { out = s.reg.List() })
	return out, err
}

func (s *Supervisor) Sessions(ctx context.Context) ([]session.Snapshot, error) {
	var out []session.Snapshot
	err := s.loop.Do(ctx, func() { out = s.sessions.Snapshot() })
	return out, err
}

// ---- dentro do loop ----

func (s *Supervisor) reconcile() {
	opened, closed := s.sessions.Reconcile(s.reg.List())
	if opened > 0 || closed > 0 {
		logger().Info().Int("opened", opened).Int("closed", closed).Msg("sessions reconciled")
	}
	s.updateSessionMetrics()
}

func (s *Supervisor) registryChanged() {
	cams := s.reg.List()
	s.metrics.Cameras.Set(float64(len(cams)))
	if s.registryFile != "" {
		if err := s.reg.Save(s.registryFile); err != nil {
			logger().Error().Err(err).Str("file", s.registryFile).Msg("failed to persist registry")
		}
	}
	s.syncProxy(cams)
}

func (s *Supervisor) syncProxy(cams []core.CameraInfo) {
	if s.mtx == nil {
		return
	}
	go func() {
		if err := s.mtx.Sync(cams); err != nil {
			if errors.Is(err, mediamtx.ErrReloadNotConfigured) {
				logger().Debug().Msg("mediamtx config written without reload")
				return
			}
			logger().Error().Err(err).Msg("erro ao atualizar config do MediaMTX")
		}
	}()
}

func (s *Supervisor) updateSessionMetrics() {
	counts := make(map[core.ConnectionState]int)
	for _, snap := range s.sessions.Snapshot() {
		counts[snap.State]++
	}
	s.metrics.SetSessionStates(counts)
}

func (s *Supervisor) handleState(info core.CameraInfo, state core.ConnectionState, reason string) {
	s.updateSessionMetrics()
	s.notify(Notification{Kind: KindConnectionState, Camera: info.Name, State: state, Reason: reason})
}

// handleMessage aplica as regras de domínio a um frame já em ordem de
// chegada da sessão.
func (s *Supervisor) handleMessage(info core.CameraInfo, raw []byte) {
	env, err := classifier.DecodeFrame(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, classifier.ErrMissingType) {
			reason = "missing_type"
		}
		s.metrics.DroppedFrames.WithLabelValues(reason).Inc()
		logger().Warn().Err(err).Str("camera", info.Name).Msg("frame dropped")
		return
	}

	cam, ok := s.reg.ByAddress(info.Address())
	if !ok {
		s.metrics.DroppedFrames.WithLabelValues("unknown_camera").Inc()
		logger().Debug().Str("addr", info.Address()).Msg("frame from unregistered address")
		return
	}

	msgType := env.Type
	if _, known := core.MessageTypeSet[msgType]; !known {
		msgType = "unknown"
	}
	s.metrics.Messages.WithLabelValues(msgType).Inc()

	evt := s.cls.Classify(env, cam)
	if evt == nil {
		return
	}

	switch e := evt.(type) {
	case core.Detection:
		entry, ok := s.cls.Entry(e, cam)
		if !ok {
			s.streaks.RecordClear(cam.Name)
			return
		}
		s.appendLog(entry)
		n, escalated := s.streaks.RecordViolation(cam.Name)
		if escalated {
			s.metrics.Escalations.WithLabelValues(cam.Name).Inc()
			logger().Warn().Str("camera", cam.Name).Int("streak", n).Msg("PPE violation streak escalated")
			s.notify(Notification{Kind: KindEscalation, Camera: cam.Name, Streak: n, Entry: &entry})
		}

	case core.BlurDetection:
		if s.streaks.IsDuplicate(streak.DedupKey(cam.Name, e.Timestamp)) {
			return
		}
		s.logEvent(e, cam)

	case core.AnomalyStatus:
		if !s.streaks.StatusChanged(cam.Name, string(e.Status)) {
			return
		}
		s.logEvent(e, cam)

	case core.HealthStatus:
		s.prober.RecordResponse(cam.Name)
		health := e
		s.notify(Notification{Kind: KindHealthStatus, Camera: cam.Name, Health: &health})

	case core.CommandAck:
		s.resolveAck(cam, e)

	case core.Unknown:
		logger().Debug().Str("camera", cam.Name).Str("type", e.Type).Msg("unknown message type")

	default:
		s.logEvent(evt, cam)
	}
}

func (s *Supervisor) logEvent(evt core.Event, cam core.CameraInfo) {
	if entry, ok := s.cls.Entry(evt, cam); ok {
		s.appendLog(entry)
	}
}

func (s *Supervisor) appendLog(entry core.LogEntry) {
	if evicted := s.store.Append(entry); evicted != nil {
		logger().Debug().Str("camera", evicted.CameraName).Str("timestamp", evicted.Timestamp).Msg("log evicted")
	}
	s.metrics.LogEntries.WithLabelValues(string(entry.Function)).Inc()
	s.metrics.StoredLogs.Set(float64(s.store.Len()))
	s.notify(Notification{Kind: KindLogAppended, Camera: entry.CameraName, Entry: &entry})

	if s.archiver != nil && entry.ImageURL != "" {
		if !s.archives.TryGo(func() error { s.archive(entry); return nil }) {
			s.metrics.Archives.WithLabelValues("skipped").Inc()
			logger().Warn().Str("camera", entry.CameraName).Str("timestamp", entry.Timestamp).Msg("archive workers busy, snapshot not archived")
		}
	}
}

func (s *Supervisor) archive(entry core.LogEntry) {
	archived, err := s.archiver.Archive(s.baseCtx, entry)
	if err != nil {
		s.metrics.Archives.WithLabelValues("error").Inc()
		logger().Warn().Err(err).Str("camera", entry.CameraName).Msg("snapshot archive failed")
		return
	}
	s.metrics.Archives.WithLabelValues("ok").Inc()
	s.loop.Post(func() {
		if _, ok := s.reg.Get(entry.CameraName); !ok {
			return
		}
		s.notify(Notification{Kind: KindSnapshotArchived, Camera: entry.CameraName, Entry: &entry, ArchivedURL: archived})
	})
}

// resolveAck casa o ack pelo request_id; acks sem id resolvem o comando
// pendente mais antigo da câmera.
func (s *Supervisor) resolveAck(cam core.CameraInfo, ack core.CommandAck) {
	queue := s.pending[cam.Name]
	idx := -1
	if ack.RequestID != "" {
		for i, p := range queue {
			if p.id == ack.RequestID {
				idx = i
				break
			}
		}
	} else if len(queue) > 0 {
		idx = 0
	}

	n := Notification{Kind: KindCommandAck, Camera: cam.Name, RequestID: ack.RequestID, Message: ack.Message}
	if idx >= 0 {
		cmd := queue[idx]
		s.pending[cam.Name] = append(queue[:idx:idx], queue[idx+1:]...)
		n.RequestID = cmd.id
		n.Mode = cmd.mode
		logger().Debug().Str("camera", cam.Name).Str("request_id", cmd.id).Dur("latency", s.now().Sub(cmd.sentAt)).Msg("ack correlated")
	} else {
		logger().Debug().Str("camera", cam.Name).Str("request_id", ack.RequestID).Msg("ack without pending command")
	}

	if ack.Status == core.AckError {
		n.Kind = KindCommandRejected
		logger().Warn().Str("camera", cam.Name).Str("message", ack.Message).Msg("command rejected by camera")
	}
	s.metrics.CommandAcks.WithLabelValues(string(ack.Status)).Inc()
	s.notify(n)
}

func (s *Supervisor) handleProbeTimeout(cam core.CameraInfo) {
	if current, ok := s.reg.Get(cam.Name); !ok || current != cam {
		return
	}
	s.metrics.ProbeTimeouts.WithLabelValues(cam.Name).Inc()
	s.notify(Notification{Kind: KindNeedsAttention, Camera: cam.Name, Reason: "health probe timed out"})
}

// startMerge busca o histórico das câmeras e dobra no log quando todas
// as buscas voltarem.
func (s *Supervisor) startMerge(cams []core.CameraInfo) {
	if s.history == nil || len(cams) == 0 {
		return
	}
	s.batchID++
	id := s.batchID
	s.batches[id] = logstore.NewMergeBatch(len(cams) * len(history.Categories))

	go s.history.FetchAll(s.baseCtx, cams, func(r history.Result) {
		s.loop.Post(func() { s.historyResult(id, r) })
	})
}

func (s *Supervisor) historyResult(id uint64, r history.Result) {
	batch, ok := s.batches[id]
	if !ok {
		return
	}
	result := "ok"
	if r.Err != nil {
		result = "error"
	}
	s.metrics.HistoryFetches.WithLabelValues(string(r.Category), result).Inc()

	if !batch.Complete(r.Source(), r.Entries, r.Err) {
		return
	}
	delete(s.batches, id)

	// câmeras removidas durante a busca não entram no log
	merged := batch.Entries()
	kept := merged[:0]
	for _, e := range merged {
		if _, ok := s.reg.Get(e.CameraName); ok {
			kept = append(kept, e)
		}
	}
	s.store.BulkMerge(kept)
	s.metrics.StoredLogs.Set(float64(s.store.Len()))
	logger().Info().Int("fetched", len(kept)).Int("failures", batch.Failures()).Int("stored", s.store.Len()).Msg("history merged")
	s.notify(Notification{Kind: KindLogsMerged, Entries: s.store.Entries()})
}
