// Package ws implements the WebSocket stream of tems-server.
//
// Hub manages a set of connected clients and broadcasts the current source
// snapshot to all of them on a configurable interval (server.stream.interval,
// default 5s). Hub.ServeHTTP upgrades a connection, queues the current
// snapshot immediately, then streams one message per tick. A client whose
// send buffer is full is dropped.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The server mounts the hub at /ws/stream.
package ws
