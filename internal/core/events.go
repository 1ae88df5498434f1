// internal/core/events.go
package core

// Tipos de mensagem que chegam da câmera (campo "type").
const (
	MsgDetection     = "new_detection"
	MsgTrespass      = "new_trespass"
	MsgBlur          = "new_blur"
	MsgFall          = "new_fall"
	MsgAnomalyStatus = "anomaly_status"
	MsgHealthStatus  = "stm_status_update"
	MsgModeChangeAck = "mode_change_ack"
	MsgLog           = "log"
)

var MessageTypes = []string{
	MsgDetection,
	MsgTrespass,
	MsgBlur,
	MsgFall,
	MsgAnomalyStatus,
	MsgHealthStatus,
	MsgModeChangeAck,
	MsgLog,
}

// MessageTypeSet casa o campo "type" exatamente como a câmera manda.
var MessageTypeSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(MessageTypes))
	for _, t := range MessageTypes {
		m[t] = struct{}{}
	}
	return m
}()

// Event é o evento de domínio classificado a partir de uma mensagem.
// Transiente: construído por mensagem e consumido na hora.
type Event interface {
	Kind() string
}

type Detection struct {
	PersonCount   int
	HelmetCount   int
	VestCount     int
	AvgConfidence float64
	ImagePath     string
	Timestamp     string
}

type Intrusion struct {
	Count     int
	ImagePath string
	Timestamp string
}

type BlurDetection struct {
	Count     int
	Timestamp string
}

type FallDetection struct {
	Count     int
	Timestamp string
}

type AnomalyState string

const (
	AnomalyDetected AnomalyState = "detected"
	AnomalyCleared  AnomalyState = "cleared"
)

type AnomalyStatus struct {
	Status    AnomalyState
	Timestamp string
}

type HealthStatus struct {
	Temperature float64 `json:"temperature"`
	LightLevel  float64 `json:"light"`
	BuzzerOn    bool    `json:"buzzer_on"`
	LEDOn       bool    `json:"led_on"`
}

type AckStatus string

const (
	AckOK    AckStatus = "ok"
	AckError AckStatus = "error"
)

type CommandAck struct {
	Status    AckStatus
	Message   string
	RequestID string
}

// DeviceLog é a mensagem genérica "log" que a câmera já manda pronta.
type DeviceLog struct {
	Function  Function
	Event     string
	Details   string
	Timestamp string
}

type Unknown struct {
	Type string
	Raw  []byte
}

func (Detection) Kind() string     { return MsgDetection }
func (Intrusion) Kind() string     { return MsgTrespass }
func (BlurDetection) Kind() string { return MsgBlur }
func (FallDetection) Kind() string { return MsgFall }
func (AnomalyStatus) Kind() string { return MsgAnomalyStatus }
func (HealthStatus) Kind() string  { return MsgHealthStatus }
func (CommandAck) Kind() string    { return MsgModeChangeAck }
func (DeviceLog) Kind() string     { return MsgLog }
func (Unknown) Kind() string       { return "unknown" }
