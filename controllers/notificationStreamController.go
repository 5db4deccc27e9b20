package controllers

import (
	"net/http"
	"time"

	"github.com/CarMarket/pushsync/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer       = 16
	streamPingInterval = 30 * time.Second
	streamWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamNotifications upgrades to a websocket and writes every notification
// row inserted for the user as JSON until the client goes away.
func StreamNotifications(sub realtime.Subscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := authorizedUser(c, "view")
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			zap.S().Warnw("notification stream upgrade failed", "userId", userID, "error", err)
			return
		}
		defer conn.Close()

		events := make(chan realtime.Event, streamBuffer)
		unsubscribe := sub.Subscribe(userID, func(ev realtime.Event) {
			select {
			case events <- ev:
			default:
				zap.S().Warnw("dropping notification event for slow stream", "userId", userID, "notificationId", ev.ID)
			}
		})
		defer unsubscribe()

		// the client never sends; reading only surfaces the close
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-gone:
				return
			case ev := <-events:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					zap.S().Infow("notification stream write failed", "userId", userID, "error", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	}
}
