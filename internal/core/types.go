// internal/core/types.go
package core

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout é o formato usado pelas câmeras tanto no stream ao vivo
// quanto no histórico HTTP.
const TimestampLayout = "2006-01-02 15:04:05"

type CameraInfo struct {
	Name string `json:"name" yaml:"name"`
	IP   string `json:"ip" yaml:"ip"`
	Port int    `json:"port" yaml:"port"`
}

// Address é a chave das sessões: uma conexão por endereço.
func (c CameraInfo) Address() string {
	return c.IP
}

// RTSPURL é a origem do tile de vídeo da câmera.
func (c CameraInfo) RTSPURL() string {
	return fmt.Sprintf("rtsps://%s:%d/raw", c.IP, c.Port)
}

// Function é a categoria do log (coluna "Function" do histórico).
type Function string

const (
	FunctionPPE   Function = "PPE"
	FunctionNight Function = "Night"
	FunctionBlur  Function = "Blur"
	FunctionFall  Function = "Fall"
	FunctionSound Function = "Sound"
)

var Functions = []Function{FunctionPPE, FunctionNight, FunctionBlur, FunctionFall, FunctionSound}

// ParseFunction aceita só as categorias conhecidas, sem diferenciar caixa.
func ParseFunction(s string) (Function, bool) {
	s = strings.TrimSpace(s)
	for _, f := range Functions {
		if strings.EqualFold(string(f), s) {
			return f, true
		}
	}
	return "", false
}

type LogEntry struct {
	CameraName string   `json:"camera_name"`
	Function   Function `json:"function"`
	Event      string   `json:"event"`
	Timestamp  string   `json:"timestamp"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// Time interpreta o timestamp do log. Timestamps inválidos retornam
// zero time, que ordena como o mais antigo.
func (e LogEntry) Time() time.Time {
	t, err := time.ParseInLocation(TimestampLayout, e.Timestamp, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ConnectionState representa o estado da sessão com a câmera.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// Command é qualquer mensagem enviada do dashboard para a câmera.
type Command struct {
	Type      string `json:"type"`
	Mode      string `json:"mode,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	CommandSetMode       = "set_mode"
	CommandRequestStatus = "request_stm_status"
)

var Modes = []string{"raw", "blur", "detect", "trespass", "fall"}

func ValidMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

func SetModeCommand(mode, requestID string) Command {
	return Command{Type: CommandSetMode, Mode: mode, RequestID: requestID}
}

func StatusRequestCommand() Command {
	return Command{Type: CommandRequestStatus}
}
