package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/segment"
)

// Client drives one dictation stream.
type Client struct {
	stream    grpc.ClientStream
	sessionID string
}

// NewClient opens a dictation stream on conn and waits for the session id.
func NewClient(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (*Client, error) {
	stream, err := conn.NewStream(ctx, &StreamDesc, StreamFullMethod, opts...)
	if err != nil {
		return nil, err
	}

	first := new(structpb.Struct)
	if err := stream.RecvMsg(first); err != nil {
		return nil, err
	}
	f := first.GetFields()
	if f["type"].GetStringValue() != typeSession {
		return nil, fmt.Errorf("%w: expected session header, got %v", ErrBadMessage, first)
	}
	return &Client{stream: stream, sessionID: f["sessionId"].GetStringValue()}, nil
}

// SessionID returns the server-assigned session id.
func (c *Client) SessionID() string { return c.sessionID }

// SendAudio sends a LINEAR16 chunk.
func (c *Client) SendAudio(pcm []byte) error {
	msg, err := EncodeAudio(pcm)
	if err != nil {
		return err
	}
	return c.stream.SendMsg(msg)
}

// SendSelections asks the server to switch sentence variants.
func (c *Client) SendSelections(selections ...segment.Selection) error {
	msg, err := EncodeSelections(selections)
	if err != nil {
		return err
	}
	return c.stream.SendMsg(msg)
}

// Abort asks the server to end the session immediately.
func (c *Client) Abort() error {
	msg, err := EncodeClose()
	if err != nil {
		return err
	}
	return c.stream.SendMsg(msg)
}

// CloseSend ends intake. Updates keep arriving until the session drains.
func (c *Client) CloseSend() error { return c.stream.CloseSend() }

// Recv returns the next update, or io.EOF once the session has ended.
func (c *Client) Recv() (orchestrator.TranscriptionUpdate, error) {
	msg := new(structpb.Struct)
	if err := c.stream.RecvMsg(msg); err != nil {
		return orchestrator.TranscriptionUpdate{}, err
	}
	return DecodeUpdate(msg)
}
