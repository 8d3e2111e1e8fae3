package domain

// Push event names delivered over a channel.
const (
	EventConnected       = "connected"
	EventQuestion        = "question"
	EventStreamChat      = "stream_chat"
	EventDone            = "done"
	EventRecommendResult = "recommend_result"
	EventSummary         = "summary"
	EventError           = "error"
	EventPing            = "ping"
)
