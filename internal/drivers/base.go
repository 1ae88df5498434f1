// internal/drivers/base.go
package drivers

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/sua-org/safetynet/internal/core"
)

// Conn é o canal duplex com uma câmera. ReadMessage bloqueia até chegar
// um frame ou a conexão cair; WriteMessage não pode ser chamado em paralelo.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close() error
}

// Dialer abre a conexão com a câmera.
type Dialer interface {
	Dial(ctx context.Context, info core.CameraInfo) (Conn, error)
}

type Options struct {
	// Secure escolhe wss/https em vez de ws/http.
	Secure           bool
	Path             string
	TLS              *tls.Config
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

type DriverFactory func(opts Options) (Dialer, error)

var registry = map[string]DriverFactory{}

// RegisterDriver é chamado no init() de cada transporte.
func RegisterDriver(name string, f DriverFactory) {
	registry[normalize(name)] = f
}

func GetDriver(name string, opts Options) (Dialer, error) {
	if f, ok := registry[normalize(name)]; ok {
		return f(opts)
	}
	return nil, ErrDriverNotFound
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, " ", "")
}
