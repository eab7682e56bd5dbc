package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
	"taskboard-api/hub"
)

const (
	wsReadLimit = 4096
	wsPongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin browsers carry the token explicitly, so the Origin
	// header adds nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWS upgrades an authenticated request to a websocket and registers the
// connection with the hub. The connection receives nothing until the client
// sends a join event for its own user id.
func serveWS(h *hub.Hub, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			// Browser websocket clients cannot set headers; the token
			// rides in the query string instead.
			if token := c.QueryParam("token"); token != "" {
				header = "Bearer " + token
			}
		}
		userID, err := auth.UserIDFromAuthHeader(header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.Errorf("websocket upgrade failed: %v", err)
			return err
		}

		conn := h.NewConn(ws)
		go conn.WritePump()
		go readPump(h, conn, ws, userID, logger)
		return nil
	}
}

// readPump consumes client frames until the connection dies. Only join
// events are meaningful from clients; everything else is dropped.
func readPump(h *hub.Hub, conn *hub.Conn, ws *websocket.Conn, userID string, logger *log.Logger) {
	defer func() {
		h.Leave(conn)
		ws.Close()
	}()
	ws.SetReadLimit(wsReadLimit)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("websocket closed: %v", err)
			}
			return
		}
		var ev domain.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			logger.Debugf("ignoring malformed client frame: %v", err)
			continue
		}
		if ev.Name != domain.JoinUser {
			continue
		}
		var claimed string
		if err := json.Unmarshal(ev.Data, &claimed); err != nil || claimed == "" {
			continue
		}
		if claimed != userID {
			logger.WithFields(log.Fields{"claimed": claimed, "user": userID}).Warn("join rejected for foreign room")
			continue
		}
		h.Join(conn, userID)
	}
}
