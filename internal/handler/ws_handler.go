/*
Package handler provides the HTTP surface of the chat server: the WebSocket
upgrade endpoint and the health endpoint.

This file contains the connection supervisor: it rate-limits and upgrades
incoming requests, constructs the Client, starts its write loop, and runs its
read loop until the transport closes. The join handshake itself happens on the
first frame inside the read loop, and teardown is guaranteed by the Client.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"devschat/internal/app/chat"
	"devschat/internal/pkg/errs"
	"devschat/internal/pkg/limiter"
	"devschat/internal/pkg/logx"
	"devschat/internal/pkg/resp"
)

// HandleWebSocket creates the HandlerFunc accepting new chat connections.
func HandleWebSocket(upgrader websocket.Upgrader, connectLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !connectLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Registry, conn)

		go client.WritePump()

		logx.Info("WebSocket connection established", "connection_id", client.ID())

		// Blocks until the transport closes; cleanup runs exactly once inside.
		client.ReadPump()
	}
}
