// internal/classifier/classifier.go
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/core"
)

// LegacyCompliantIsViolation mantém o comportamento histórico: uma detecção
// sem nenhuma falta de EPI ainda é registrada como "PPE missing".
// Pendente de revisão pelo produto.
const LegacyCompliantIsViolation = true

const (
	LabelHelmetMissing = "helmet missing"
	LabelVestMissing   = "vest missing"
	LabelPPEMissing    = "PPE missing"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame without type")
)

func logger() *zerolog.Logger {
	l := log.With().Str("component", "classifier").Logger()
	return &l
}

// Envelope é o frame cru: type + data, e os campos de ack que vêm no topo.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// DecodeFrame valida o frame. Erros aqui fazem o frame ser descartado.
func DecodeFrame(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return env, ErrMissingType
	}
	return env, nil
}

type Classifier struct {
	CompliantIsViolation bool
	now                  func() time.Time
}

func New() *Classifier {
	return &Classifier{
		CompliantIsViolation: LegacyCompliantIsViolation,
		now:                  time.Now,
	}
}

// payload junta todos os campos possíveis de "data". Números chegam
// como float do JSON e são convertidos depois.
type payload struct {
	PersonCount   float64 `json:"person_count"`
	HelmetCount   float64 `json:"helmet_count"`
	VestCount     float64 `json:"safety_vest_count"`
	AvgConfidence float64 `json:"avg_confidence"`
	ImagePath     string  `json:"image_path"`
	Timestamp     string  `json:"timestamp"`
	Count         float64 `json:"count"`
	Status        string  `json:"status"`
	Temperature   float64 `json:"temperature"`
	Light         float64 `json:"light"`
	BuzzerOn      bool    `json:"buzzer_on"`
	LEDOn         bool    `json:"led_on"`
	Event         string  `json:"event"`
	Details       string  `json:"details"`
	Function      string  `json:"function"`
}

// Classify transforma o frame num evento de domínio. Retorna nil quando a
// mensagem foi recebida mas não gera evento (ex.: count == 0).
func (c *Classifier) Classify(env Envelope, cam core.CameraInfo) core.Event {
	var p payload
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			logger().Warn().Err(err).Str("camera", cam.Name).Str("type", env.Type).Msg("invalid data payload")
			return core.Unknown{Type: env.Type, Raw: env.Data}
		}
	}
	ts := strings.TrimSpace(p.Timestamp)
	if ts == "" {
		ts = c.now().Format(core.TimestampLayout)
	}

	switch env.Type {
	case core.MsgDetection:
		return core.Detection{
			PersonCount:   int(p.PersonCount),
			HelmetCount:   int(p.HelmetCount),
			VestCount:     int(p.VestCount),
			AvgConfidence: p.AvgConfidence,
			ImagePath:     p.ImagePath,
			Timestamp:     ts,
		}
	case core.MsgTrespass:
		if int(p.Count) <= 0 {
			return nil
		}
		return core.Intrusion{Count: int(p.Count), ImagePath: p.ImagePath, Timestamp: ts}
	case core.MsgBlur:
		return core.BlurDetection{Count: int(p.Count), Timestamp: ts}
	case core.MsgFall:
		if int(p.Count) <= 0 {
			return nil
		}
		return core.FallDetection{Count: int(p.Count), Timestamp: ts}
	case core.MsgAnomalyStatus:
		status := core.AnomalyState(strings.ToLower(strings.TrimSpace(p.Status)))
		if status != core.AnomalyDetected && status != core.AnomalyCleared {
			logger().Debug().Str("camera", cam.Name).Str("status", p.Status).Msg("unknown anomaly status")
			return core.Unknown{Type: env.Type, Raw: env.Data}
		}
		return core.AnomalyStatus{Status: status, Timestamp: ts}
	case core.MsgHealthStatus:
		return core.HealthStatus{
			Temperature: p.Temperature,
			LightLevel:  p.Light,
			BuzzerOn:    p.BuzzerOn,
			LEDOn:       p.LEDOn,
		}
	case core.MsgModeChangeAck:
		status := core.AckOK
		if !strings.EqualFold(strings.TrimSpace(env.Status), string(core.AckOK)) {
			status = core.AckError
		}
		return core.CommandAck{Status: status, Message: env.Message, RequestID: env.RequestID}
	case core.MsgLog:
		fn, ok := core.ParseFunction(p.Function)
		if !ok {
			logger().Warn().Str("camera", cam.Name).Str("function", p.Function).Msg("log with unknown function dropped")
			return core.Unknown{Type: env.Type, Raw: env.Data}
		}
		return core.DeviceLog{
			Function:  fn,
			Event:     p.Event,
			Details:   p.Details,
			Timestamp: ts,
		}
	}

	return core.Unknown{Type: env.Type, Raw: env.Data}
}

// Violation aplica a regra de EPI. ok=false só acontece com
// CompliantIsViolation desligado e nenhuma falta.
func (c *Classifier) Violation(d core.Detection) (label string, ok bool) {
	p, h, v := d.PersonCount, d.HelmetCount, d.VestCount
	switch {
	case h < p && v >= p:
		return LabelHelmetMissing, true
	case v < p && h >= p:
		return LabelVestMissing, true
	case h >= p && v >= p && !c.CompliantIsViolation:
		return "", false
	default:
		return LabelPPEMissing, true
	}
}

// Entry monta a linha de log do evento. Eventos sem log (health, ack,
// unknown) retornam ok=false. Dedup de blur e borda de anomalia ficam
// com o chamador.
func (c *Classifier) Entry(evt core.Event, cam core.CameraInfo) (core.LogEntry, bool) {
	entry := core.LogEntry{CameraName: cam.Name}

	switch e := evt.(type) {
	case core.Detection:
		label, ok := c.Violation(e)
		if !ok {
			return entry, false
		}
		entry.Function = core.FunctionPPE
		entry.Event = label
		entry.Timestamp = e.Timestamp
		entry.ImageURL = core.ImageURL(cam.IP, e.ImagePath)
	case core.Intrusion:
		entry.Function = core.FunctionNight
		entry.Event = fmt.Sprintf("intrusion detected (%d)", e.Count)
		entry.Timestamp = e.Timestamp
		entry.ImageURL = core.ImageURL(cam.IP, e.ImagePath)
	case core.BlurDetection:
		entry.Function = core.FunctionBlur
		entry.Event = "camera blur detected"
		entry.Timestamp = e.Timestamp
	case core.FallDetection:
		entry.Function = core.FunctionFall
		entry.Event = fmt.Sprintf("fall detected (%d)", e.Count)
		entry.Timestamp = e.Timestamp
	case core.AnomalyStatus:
		entry.Function = core.FunctionSound
		entry.Event = "sound anomaly " + string(e.Status)
		entry.Timestamp = e.Timestamp
	case core.DeviceLog:
		entry.Function = e.Function
		entry.Event = e.Event
		if e.Details != "" {
			entry.Event = e.Event + ": " + e.Details
		}
		entry.Timestamp = e.Timestamp
	default:
		return entry, false
	}
	return entry, true
}
