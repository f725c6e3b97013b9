package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fraud-detection-service/internal/realtime"
	"fraud-detection-service/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser dashboards and desktop agents connect from arbitrary origins
	// inside the corporate network; auth happens at the join frame.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades connections and hands them to the realtime hub.
type WSHandler struct {
	hub    *realtime.Hub
	sink   realtime.ActivitySink
	logger *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, sink realtime.ActivitySink, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		sink:   sink,
		logger: logger,
	}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", util.ErrorField(err))
		return
	}

	client := realtime.NewClient(h.hub, h.sink, conn)
	h.hub.Register <- client
	client.Start()
}
