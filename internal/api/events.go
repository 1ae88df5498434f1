// internal/api/events.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const eventsWriteTimeout = 5 * time.Second

// EventsHandler repassa as notificações do núcleo para clientes WebSocket.
type EventsHandler struct {
	core     Core
	upgrader websocket.Upgrader
}

func NewEventsHandler(c Core) *EventsHandler {
	return &EventsHandler{
		core: c,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleEvents faz o upgrade e envia notificações até o cliente sair.
func (eh *EventsHandler) HandleEvents(c echo.Context) error {
	ws, err := eh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	notes, cancel := eh.core.Subscribe(128)
	defer cancel()

	// leitor só para detectar o fechamento do cliente
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger().Debug().Str("remote", c.RealIP()).Msg("events client connected")
	for {
		select {
		case <-gone:
			logger().Debug().Str("remote", c.RealIP()).Msg("events client disconnected")
			return nil
		case n, ok := <-notes:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := ws.WriteJSON(n); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger().Warn().Err(err).Msg("events write failed")
				}
				return nil
			}
		}
	}
}
