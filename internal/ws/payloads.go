package ws

// client → server
type InboundMessage struct {
	Type   string `json:"type"`
	Online *bool  `json:"online,omitempty"`
}

// server → client
type NoticeMessage struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type QueueMessage struct {
	Type         string `json:"type"`
	Total        int    `json:"total"`
	PendingCount int    `json:"pending_count"`
	FailedCount  int    `json:"failed_count"`
}

type SyncSummaryMessage struct {
	Type       string `json:"type"`
	Synced     int    `json:"synced"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

type ConnectivityMessage struct {
	Type   string `json:"type"`
	Online bool   `json:"online"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
