// internal/drivers/websocket.go
package drivers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/core"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

type WebSocketDriver struct {
	opts   Options
	dialer *websocket.Dialer
}

func NewWebSocketDriver(opts Options) (Dialer, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	d := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  opts.TLS,
	}
	if opts.Secure && opts.TLS != nil && opts.TLS.InsecureSkipVerify {
		log.Warn().Str("component", "websocket").Msg("TLS certificate verification disabled for camera connections")
	}
	return &WebSocketDriver{opts: opts, dialer: d}, nil
}

func init() {
	RegisterDriver("websocket", NewWebSocketDriver)
}

// URLFor monta ws(s)://ip:port/path da câmera.
func (d *WebSocketDriver) URLFor(info core.CameraInfo) string {
	scheme := "ws"
	if d.opts.Secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   info.IP + ":" + strconv.Itoa(info.Port),
		Path:   d.opts.Path,
	}
	return u.String()
}

func (d *WebSocketDriver) Dial(ctx context.Context, info core.CameraInfo) (Conn, error) {
	target := d.URLFor(info)
	ws, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", target, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &wsConn{ws: ws, writeTimeout: d.opts.WriteTimeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, fmt.Errorf("%w: %s", ErrClosed, ce.Error())
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) WriteMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
