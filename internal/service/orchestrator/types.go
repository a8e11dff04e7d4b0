package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"dictation-orchestrator/internal/service/segment"
)

// Source identifies which lane produced a transcript.
type Source int

const (
	SourceLocal Source = iota
	SourceCloud
	SourcePolished
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceCloud:
		return "cloud"
	case SourcePolished:
		return "polished"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the source as its lowercase name.
func (s Source) MarshalText() ([]byte, error) {
	switch s {
	case SourceLocal, SourceCloud, SourcePolished:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown source %d", int(s))
	}
}

// NoticeLevel is the severity of a session notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeInfo:
		return "info"
	case NoticeWarn:
		return "warn"
	case NoticeError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// MarshalText encodes the level as its lowercase name.
func (l NoticeLevel) MarshalText() ([]byte, error) {
	switch l {
	case NoticeInfo, NoticeWarn, NoticeError:
		return []byte(l.String()), nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown notice level %d", int(l))
	}
}

// Notice messages delivered to clients. Clients may match on them.
const (
	MsgFirstUpdateLate = "local decode latency anomaly, fallback hint retained"
	MsgCadenceLate     = "local decode cadence delayed, fallback hint retained"
	MsgLocalFailed     = "local decode anomaly, switching to cloud"
	MsgCloudFailed     = "cloud anomaly, falling back to local"
	MsgPolishFailed    = "polish failed, raw transcript retained"
)

// delayMessage picks the lateness notice for a frame.
func delayMessage(frameIndex uint64) string {
	if frameIndex <= 1 {
		return MsgFirstUpdateLate
	}
	return MsgCadenceLate
}

// PayloadKind discriminates TranscriptionUpdate payloads.
type PayloadKind string

const (
	KindTranscript PayloadKind = "transcript"
	KindNotice     PayloadKind = "notice"
	KindSelection  PayloadKind = "selection"
)

// Payload is one of Transcript, Notice or Selection.
type Payload interface {
	Kind() PayloadKind
	payload()
}

// Transcript carries one sentence from a lane.
type Transcript struct {
	SentenceID uint64
	Text       string
	Source     Source
	// IsPrimary marks the transcript the UI should present as authoritative.
	IsPrimary bool
	// WithinSLA is false only for polished text delivered past its deadline.
	WithinSLA bool
}

// Notice reports degradation or failure inside the session.
type Notice struct {
	Level   NoticeLevel
	Message string
	// SentenceID is set when the notice concerns one sentence, otherwise zero.
	SentenceID uint64
}

// Selection acknowledges variant selections the store applied.
type Selection struct {
	Selections []segment.Selection
}

func (Transcript) Kind() PayloadKind { return KindTranscript }
func (Notice) Kind() PayloadKind     { return KindNotice }
func (Selection) Kind() PayloadKind  { return KindSelection }

func (Transcript) payload() {}
func (Notice) payload()     {}
func (Selection) payload()  {}

// TranscriptionUpdate is one message on a session's update stream.
type TranscriptionUpdate struct {
	Payload Payload
	// Latency is measured from the frame's dispatch, or is the lateness for
	// deadline notices. Zero for selection acknowledgements.
	Latency time.Duration
	// FrameIndex is the 1-based frame the update derives from, or zero.
	FrameIndex uint64
	// IsFirst is true on at most one transcript per session.
	IsFirst bool
}

// String renders the update for logs and test failures.
func (u TranscriptionUpdate) String() string {
	var b strings.Builder
	switch p := u.Payload.(type) {
	case Transcript:
		fmt.Fprintf(&b, "transcript[%s #%d primary=%t sla=%t] %q", p.Source, p.SentenceID, p.IsPrimary, p.WithinSLA, p.Text)
	case Notice:
		fmt.Fprintf(&b, "notice[%s] %s", p.Level, p.Message)
	case Selection:
		fmt.Fprintf(&b, "selection%v", p.Selections)
	default:
		b.WriteString("empty")
	}
	fmt.Fprintf(&b, " frame=%d latency=%s first=%t", u.FrameIndex, u.Latency, u.IsFirst)
	return b.String()
}

// EngineConfig is the process-wide orchestrator configuration.
type EngineConfig struct {
	// PreferCloud lets the cloud lane win the first update outright.
	PreferCloud bool `env:"PREFER_CLOUD" envDefault:"false"`
}
