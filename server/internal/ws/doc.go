// Package ws implements the WebSocket hub for the crashdetector server.
//
// Hub manages a set of connected clients and pushes the latest risk snapshot
// to all of them: on connect, every interval, and as soon as the receiver
// loads a new snapshot (Notify).
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot" | "update",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The hub is mounted at /ws/stream.
package ws
