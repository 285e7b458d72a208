// Package ws streams Claude Code sessions over WebSocket.
//
// Message Types (Client → Server):
//   - message: send text to session_id, or to the active session
//   - select: answer a numbered prompt with option ("2" or "opt_2")
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - system: connection greeting
//   - output: one output unit as it arrives
//   - response: the rendered reply once the stream ends
//   - error: the request failed
//   - pong: reply to ping
//
// A connection runs one turn at a time; a message sent while a turn is in
// flight is rejected with an error frame.
//
// Example Usage:
//
//	handler := ws.NewHandler(registry, chatService, limiter, metrics, logger)
//	router.GET("/stream", middleware.Owner(id, restrict), handler.HandleConnection)
package ws
