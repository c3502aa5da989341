// Package store persists the current snapshot and the rolling history window.
//
// Two backends are provided. FileStore writes data.json (the current
// snapshot, overwritten each cycle) and historical_data.json (a JSON array,
// oldest first) using write-to-temp-then-rename so readers never observe a
// half-written file. RedisStore keeps the current snapshot under
// "<prefix>:current" and the history as a capped list under
// "<prefix>:history"; it also implements Locker so that two agent processes
// sharing one Redis never run a cycle at the same time.
//
// The current snapshot and the history are written by separate calls. A
// failure of one does not undo or prevent the other.
package store
