package ws

const (
	// client - server
	MsgConnectivity = "connectivity"
	MsgPing         = "ping"

	// server - client
	MsgReady       = "ready"
	MsgNotice      = "notice"
	MsgQueue       = "queue"
	MsgSyncSummary = "sync_summary"
	MsgPong        = "pong"
	MsgError       = "error"
)
