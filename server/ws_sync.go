package server

import (
	"net/http"

	"EchoFM/core/syncer"
	"EchoFM/logger"

	"github.com/gorilla/websocket"
)

var surfaceUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SurfaceHandler 外部展示面的WebSocket接入点。
// 连接只收推送，不发指令。
func SurfaceHandler(hub *syncer.Hub) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := surfaceUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket升级失败", logger.ErrorField(err))
			return
		}
		client := hub.Register(conn)
		logger.Info("展示面已连接",
			logger.String("clientID", client.ID),
			logger.String("remote", r.RemoteAddr))
	}
}
