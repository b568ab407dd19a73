package usecase

// Broadcaster is the outbound realtime port implemented by the websocket
// manager. Usecases depend on this instead of the manager so tests can
// capture emits.
type Broadcaster interface {
	SendToConn(connID string, message []byte)
	SendToUser(userID string, message []byte)
	SendToUsers(userIDs []string, message []byte)
	Broadcast(message []byte)
}
