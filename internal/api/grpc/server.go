// Package grpcapi serves the bidirectional dictation stream.
//
// A client opens DictationService/Stream and sends google.protobuf.Any
// messages: BytesValue for LINEAR16 audio, or a Struct carrying either
// {"selections": [{"sentenceId", "activeVariant"}]} or {"action": "close"}.
// The server first replies {"type": "session", "sessionId"} and then one
// Struct per transcription update. Half-closing the send side ends intake
// and the server finishes the stream once the session has drained.
package grpcapi

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	"dictation-orchestrator/internal/observability/logging"
	"dictation-orchestrator/internal/service/audio"
	"dictation-orchestrator/internal/service/orchestrator"
)

// Service identifiers.
const (
	ServiceName      = "dictation.v1.DictationService"
	StreamMethodName = "Stream"
	StreamFullMethod = "/" + ServiceName + "/" + StreamMethodName
)

// SessionOpener starts a session for one client stream.
type SessionOpener interface {
	OpenStream(ctx context.Context) (*audio.Handler, error)
}

// DictationServiceServer is the server API for DictationService.
type DictationServiceServer interface {
	Stream(grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DictationServiceServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    StreamMethodName,
		Handler:       streamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(DictationServiceServer).Stream(stream)
}

// StreamDesc describes the stream for clients.
var StreamDesc = serviceDesc.Streams[0]

// Server implements DictationServiceServer.
type Server struct {
	sessions SessionOpener
}

// Register adds the dictation service to g.
func Register(g *grpc.Server, sessions SessionOpener) *Server {
	s := &Server{sessions: sessions}
	g.RegisterService(&serviceDesc, s)
	return s
}

// Stream runs one dictation session over a client stream.
func (s *Server) Stream(stream grpc.ServerStream) error {
	ctx := stream.Context()

	h, err := s.sessions.OpenStream(ctx)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidConfig) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		return status.Error(codes.Unavailable, err.Error())
	}
	logger := logging.WithStream(h.SessionID(), peerAddr(ctx))
	logger.Info().Msg("Dictation stream opened")

	if err := stream.SendMsg(sessionStruct(h.SessionID())); err != nil {
		h.Close()
		_ = h.Run(ctx, nil)
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- h.Run(ctx, func(u orchestrator.TranscriptionUpdate) error {
			msg, err := EncodeUpdate(u)
			if err != nil {
				logger.Error().Err(err).Stringer("update", u).Msg("Dropping unencodable update")
				return nil
			}
			return stream.SendMsg(msg)
		})
	}()

	recvErr := s.receive(ctx, stream, h, logger)
	if recvErr != nil {
		h.Close()
	}
	sendErr := <-runErr

	stats := h.Stats()
	logger.Info().
		Int64("audioBytes", stats.AudioBytes).
		Dur("duration", stats.Duration).
		Msg("Dictation stream finished")

	switch {
	case recvErr != nil:
		return recvErr
	case ctx.Err() != nil:
		return status.FromContextError(ctx.Err()).Err()
	case sendErr != nil:
		return status.Error(codes.Canceled, sendErr.Error())
	}
	return nil
}

// receive applies client messages until the client half-closes, aborts, or
// the session ends. A non-nil error aborts the stream.
func (s *Server) receive(ctx context.Context, stream grpc.ServerStream, h *audio.Handler, logger zerolog.Logger) error {
	for {
		msg := new(anypb.Any)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				if err := h.CloseInput(ctx); err != nil && !errors.Is(err, orchestrator.ErrSessionClosed) {
					logger.Warn().Err(err).Msg("Failed to flush trailing audio")
				}
				return nil
			}
			return err
		}

		cmd, err := DecodeCommand(msg)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}

		switch c := cmd.(type) {
		case AudioCommand:
			err = h.SendAudio(ctx, c.PCM)
		case SelectCommand:
			err = h.ApplySelections(ctx, c.Selections)
		case CloseCommand:
			logger.Info().Msg("Client aborted session")
			h.Close()
			return nil
		}

		switch {
		case err == nil:
		case errors.Is(err, audio.ErrStreamLimitExceeded):
			return status.Error(codes.ResourceExhausted, err.Error())
		case errors.Is(err, orchestrator.ErrSessionClosed):
			return nil
		default:
			return status.Error(codes.Unavailable, err.Error())
		}
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
