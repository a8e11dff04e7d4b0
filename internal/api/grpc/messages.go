package grpcapi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/segment"
)

// ErrBadMessage is returned for messages that are not part of the protocol.
var ErrBadMessage = errors.New("grpcapi: malformed message")

// Message types in server replies.
const (
	typeSession = "session"
	actionClose = "close"
)

// Command is a decoded client message.
type Command interface{ command() }

// AudioCommand carries LINEAR16 little-endian PCM.
type AudioCommand struct{ PCM []byte }

// SelectCommand asks the session to switch sentence variants.
type SelectCommand struct{ Selections []segment.Selection }

// CloseCommand aborts the session.
type CloseCommand struct{}

func (AudioCommand) command()  {}
func (SelectCommand) command() {}
func (CloseCommand) command()  {}

// EncodeAudio wraps a PCM chunk for the stream.
func EncodeAudio(pcm []byte) (*anypb.Any, error) {
	return anypb.New(wrapperspb.Bytes(pcm))
}

// EncodeSelections wraps a selection command for the stream.
func EncodeSelections(selections []segment.Selection) (*anypb.Any, error) {
	items := make([]any, 0, len(selections))
	for _, sel := range selections {
		items = append(items, map[string]any{
			"sentenceId":    float64(sel.SentenceID),
			"activeVariant": sel.ActiveVariant.String(),
		})
	}
	s, err := structpb.NewStruct(map[string]any{"selections": items})
	if err != nil {
		return nil, err
	}
	return anypb.New(s)
}

// EncodeClose builds the abort command.
func EncodeClose() (*anypb.Any, error) {
	return anypb.New(&structpb.Struct{Fields: map[string]*structpb.Value{
		"action": structpb.NewStringValue(actionClose),
	}})
}

// DecodeCommand unpacks a client message.
func DecodeCommand(msg *anypb.Any) (Command, error) {
	v, err := msg.UnmarshalNew()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	switch m := v.(type) {
	case *wrapperspb.BytesValue:
		return AudioCommand{PCM: m.GetValue()}, nil
	case *structpb.Struct:
		return decodeStructCommand(m)
	default:
		return nil, fmt.Errorf("%w: unexpected type %s", ErrBadMessage, msg.GetTypeUrl())
	}
}

func decodeStructCommand(m *structpb.Struct) (Command, error) {
	fields := m.GetFields()
	if action, ok := fields["action"]; ok {
		if action.GetStringValue() != actionClose {
			return nil, fmt.Errorf("%w: unknown action %q", ErrBadMessage, action.GetStringValue())
		}
		return CloseCommand{}, nil
	}

	list := fields["selections"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: missing selections", ErrBadMessage)
	}

	cmd := SelectCommand{Selections: make([]segment.Selection, 0, len(list.GetValues()))}
	for i, item := range list.GetValues() {
		f := item.GetStructValue().GetFields()
		id, err := sentenceID(f["sentenceId"].GetNumberValue())
		if err != nil {
			return nil, fmt.Errorf("%w: selection %d: %v", ErrBadMessage, i, err)
		}
		variant, err := segment.ParseVariant(f["activeVariant"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: selection %d: %v", ErrBadMessage, i, err)
		}
		cmd.Selections = append(cmd.Selections, segment.Selection{SentenceID: id, ActiveVariant: variant})
	}
	return cmd, nil
}

func sentenceID(n float64) (uint64, error) {
	if n < 1 || n != math.Trunc(n) || n > 1<<53 {
		return 0, fmt.Errorf("invalid sentence id %v", n)
	}
	return uint64(n), nil
}

func sessionStruct(sessionID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":      structpb.NewStringValue(typeSession),
		"sessionId": structpb.NewStringValue(sessionID),
	}}
}

// EncodeUpdate renders an update as a Struct reply.
func EncodeUpdate(u orchestrator.TranscriptionUpdate) (*structpb.Struct, error) {
	if u.Payload == nil {
		return nil, fmt.Errorf("%w: update without payload", ErrBadMessage)
	}

	m := map[string]any{
		"type":       string(u.Payload.Kind()),
		"latencyMs":  float64(u.Latency.Milliseconds()),
		"frameIndex": float64(u.FrameIndex),
		"isFirst":    u.IsFirst,
	}

	switch p := u.Payload.(type) {
	case orchestrator.Transcript:
		m["sentenceId"] = float64(p.SentenceID)
		m["text"] = p.Text
		m["source"] = p.Source.String()
		m["isPrimary"] = p.IsPrimary
		m["withinSla"] = p.WithinSLA
	case orchestrator.Notice:
		m["level"] = p.Level.String()
		m["message"] = p.Message
		if p.SentenceID != 0 {
			m["sentenceId"] = float64(p.SentenceID)
		}
	case orchestrator.Selection:
		items := make([]any, 0, len(p.Selections))
		for _, sel := range p.Selections {
			items = append(items, map[string]any{
				"sentenceId":    float64(sel.SentenceID),
				"activeVariant": sel.ActiveVariant.String(),
			})
		}
		m["selections"] = items
	}
	return structpb.NewStruct(m)
}

// DecodeUpdate parses a Struct reply produced by EncodeUpdate.
func DecodeUpdate(s *structpb.Struct) (orchestrator.TranscriptionUpdate, error) {
	f := s.GetFields()
	u := orchestrator.TranscriptionUpdate{
		Latency:    time.Duration(f["latencyMs"].GetNumberValue()) * time.Millisecond,
		FrameIndex: uint64(f["frameIndex"].GetNumberValue()),
		IsFirst:    f["isFirst"].GetBoolValue(),
	}

	switch orchestrator.PayloadKind(f["type"].GetStringValue()) {
	case orchestrator.KindTranscript:
		src, err := parseSource(f["source"].GetStringValue())
		if err != nil {
			return u, err
		}
		u.Payload = orchestrator.Transcript{
			SentenceID: uint64(f["sentenceId"].GetNumberValue()),
			Text:       f["text"].GetStringValue(),
			Source:     src,
			IsPrimary:  f["isPrimary"].GetBoolValue(),
			WithinSLA:  f["withinSla"].GetBoolValue(),
		}
	case orchestrator.KindNotice:
		level, err := parseLevel(f["level"].GetStringValue())
		if err != nil {
			return u, err
		}
		u.Payload = orchestrator.Notice{
			Level:      level,
			Message:    f["message"].GetStringValue(),
			SentenceID: uint64(f["sentenceId"].GetNumberValue()),
		}
	case orchestrator.KindSelection:
		cmd, err := decodeStructCommand(s)
		if err != nil {
			return u, err
		}
		u.Payload = orchestrator.Selection{Selections: cmd.(SelectCommand).Selections}
	default:
		return u, fmt.Errorf("%w: unknown update type %q", ErrBadMessage, f["type"].GetStringValue())
	}
	return u, nil
}

func parseSource(s string) (orchestrator.Source, error) {
	for _, src := range []orchestrator.Source{orchestrator.SourceLocal, orchestrator.SourceCloud, orchestrator.SourcePolished} {
		if src.String() == s {
			return src, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown source %q", ErrBadMessage, s)
}

func parseLevel(s string) (orchestrator.NoticeLevel, error) {
	for _, l := range []orchestrator.NoticeLevel{orchestrator.NoticeInfo, orchestrator.NoticeWarn, orchestrator.NoticeError} {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown notice level %q", ErrBadMessage, s)
}
