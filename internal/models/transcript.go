// Package models defines the data structures for session events.
package models

// Event types carried in the eventType field and Kafka headers.
const (
	EventTranscript = "dictation.transcript"
	EventNotice     = "dictation.notice"
	EventSelection  = "dictation.selection"
)

// TranscriptEvent is one sentence delivered by a lane.
type TranscriptEvent struct {
	EventType  string `json:"eventType" validate:"required,eq=dictation.transcript"`
	SessionID  string `json:"sessionId" validate:"required"`
	Principal  string `json:"principal,omitempty"`
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
	SentenceID uint64 `json:"sentenceId" validate:"gt=0"`
	Source     string `json:"source" validate:"oneof=local cloud polished"`
	Text       string `json:"text"`
	IsPrimary  bool   `json:"isPrimary"`
	WithinSLA  bool   `json:"withinSla"`
	IsFirst    bool   `json:"isFirst"`
	FrameIndex uint64 `json:"frameIndex"`
	LatencyMs  int64  `json:"latencyMs" validate:"gte=0"`
}

// NoticeEvent reports degradation or failure inside a session.
type NoticeEvent struct {
	EventType  string `json:"eventType" validate:"required,eq=dictation.notice"`
	SessionID  string `json:"sessionId" validate:"required"`
	Principal  string `json:"principal,omitempty"`
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
	Level      string `json:"level" validate:"oneof=info warn error"`
	Message    string `json:"message" validate:"required"`
	SentenceID uint64 `json:"sentenceId,omitempty"`
	FrameIndex uint64 `json:"frameIndex"`
	LatencyMs  int64  `json:"latencyMs" validate:"gte=0"`
}

// SelectionItem is one applied variant selection.
type SelectionItem struct {
	SentenceID    uint64 `json:"sentenceId" validate:"gt=0"`
	ActiveVariant string `json:"activeVariant" validate:"oneof=raw polished"`
}

// SelectionEvent acknowledges the selections a session applied.
type SelectionEvent struct {
	EventType  string          `json:"eventType" validate:"required,eq=dictation.selection"`
	SessionID  string          `json:"sessionId" validate:"required"`
	Principal  string          `json:"principal,omitempty"`
	Timestamp  int64           `json:"timestamp" validate:"gt=0"`
	Selections []SelectionItem `json:"selections" validate:"required,min=1,dive"`
}
