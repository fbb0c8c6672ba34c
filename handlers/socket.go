package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"torchverso/models"
	"torchverso/presence"
	"torchverso/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	streamPeriod = 100 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is sent by the browser: its own pose.
type clientMessage struct {
	Type string      `json:"type"`
	Pose models.Pose `json:"pose"`
}

type worldFrame struct {
	Type     string               `json:"type"`
	Avatars  []presence.Avatar    `json:"avatars"`
	Entities []service.EntityView `json:"entities"`
}

// PresenceSocket streams remote avatars to the browser and accepts the
// local pose. Browsers cannot set headers on a websocket, so the token
// comes in the query string.
func (h Handler) PresenceSocket(w http.ResponseWriter, r *http.Request) {
	uid, name, err := h.svc.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	sess, err := h.svc.Attach(r.Context(), uid, name)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer h.svc.Detach(context.Background(), sess)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	logger := h.logger.With(zap.String("uid", uid))
	logger.Info("presence socket opened")

	ctx, cancel := context.WithCancel(context.Background())
	go h.writePump(ctx, conn, sess, logger)
	h.readPump(ctx, conn, sess, logger)
	cancel()
	logger.Info("presence socket closed")
}

func (h Handler) readPump(ctx context.Context, conn *websocket.Conn, sess *service.Session, logger *zap.Logger) {
	defer conn.Close()
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("presence socket read", zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Debug("skip malformed message", zap.Error(err))
			continue
		}
		if msg.Type == "pose" {
			sess.UpdatePose(ctx, msg.Pose)
		}
	}
}

func (h Handler) writePump(ctx context.Context, conn *websocket.Conn, sess *service.Session, logger *zap.Logger) {
	stream := time.NewTicker(streamPeriod)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		stream.Stop()
		ping.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case <-stream.C:
			frame := worldFrame{Type: "world", Avatars: sess.Avatars(), Entities: sess.Entities()}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Debug("presence socket write", zap.Error(err))
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
