package grpcapi

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"

	"dictation-orchestrator/internal/observability/metrics"
	"dictation-orchestrator/internal/service/audio"
	"dictation-orchestrator/internal/service/audio/pcm"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/segment"
	"dictation-orchestrator/internal/service/stt"
	"dictation-orchestrator/internal/service/stt/mock"
)

const bufSize = 1024 * 1024

type testOpener struct {
	orch   *orchestrator.EngineOrchestrator
	limits audio.StreamLimits
	err    error
}

func (o *testOpener) OpenStream(ctx context.Context) (*audio.Handler, error) {
	if o.err != nil {
		return nil, o.err
	}
	session, updates, err := o.orch.StartRealtimeSession(ctx, orchestrator.DefaultSessionConfig())
	if err != nil {
		return nil, err
	}
	return audio.NewHandlerWithLimits(session, updates, nil, o.limits), nil
}

func newOpener(local stt.Engine) *testOpener {
	return &testOpener{
		orch: orchestrator.New(orchestrator.EngineConfig{}, local,
			orchestrator.WithMetrics(metrics.NewMetricsWith(prometheus.NewRegistry())),
			orchestrator.WithLogger(zerolog.Nop()),
		),
		limits: audio.DefaultLimits(),
	}
}

func dial(t *testing.T, opener SessionOpener) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	t.Cleanup(func() { lis.Close() })

	srv := grpc.NewServer()
	Register(srv, opener)
	t.Cleanup(srv.Stop)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// speechChunk is 100ms of a loud square wave at 16kHz.
func speechChunk() []byte {
	f := make([]float32, 1600)
	for i := range f {
		if i%2 == 0 {
			f[i] = 0.1
		} else {
			f[i] = -0.1
		}
	}
	return pcm.ToLinear16(f)
}

func recvAll(t *testing.T, c *Client) ([]orchestrator.TranscriptionUpdate, error) {
	t.Helper()
	var got []orchestrator.TranscriptionUpdate
	for {
		u, err := c.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return got, nil
			}
			return got, err
		}
		got = append(got, u)
	}
}

func TestStreamTranscribesAndSelects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	local := mock.New(mock.Step{Text: "hello."})
	c, err := NewClient(ctx, dial(t, newOpener(local)))
	require.NoError(t, err)
	assert.NotEmpty(t, c.SessionID())

	require.NoError(t, c.SendAudio(speechChunk()))

	var polished orchestrator.Transcript
	for polished.Source != orchestrator.SourcePolished {
		u, err := c.Recv()
		require.NoError(t, err)
		if tr, ok := u.Payload.(orchestrator.Transcript); ok {
			polished = tr
		}
	}
	assert.Equal(t, "Hello.", polished.Text)

	require.NoError(t, c.SendSelections(segment.Selection{SentenceID: polished.SentenceID, ActiveVariant: segment.VariantRaw}))
	require.NoError(t, c.CloseSend())

	rest, err := recvAll(t, c)
	require.NoError(t, err)

	var ack *orchestrator.Selection
	for _, u := range rest {
		if sel, ok := u.Payload.(orchestrator.Selection); ok {
			ack = &sel
		}
	}
	require.NotNil(t, ack, "updates: %v", rest)
	assert.Equal(t, []segment.Selection{{SentenceID: polished.SentenceID, ActiveVariant: segment.VariantRaw}}, ack.Selections)
}

func TestStreamAbort(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := NewClient(ctx, dial(t, newOpener(mock.New())))
	require.NoError(t, err)

	require.NoError(t, c.Abort())
	_, err = recvAll(t, c)
	assert.NoError(t, err)
}

func TestStreamRejectsUnknownMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := NewClient(ctx, dial(t, newOpener(mock.New())))
	require.NoError(t, err)

	msg, err := anypb.New(durationpb.New(time.Second))
	require.NoError(t, err)
	require.NoError(t, c.stream.SendMsg(msg))

	_, err = recvAll(t, c)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStreamLimitExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opener := newOpener(mock.New())
	opener.limits = audio.StreamLimits{MaxAudioBytes: 1000}
	c, err := NewClient(ctx, dial(t, opener))
	require.NoError(t, err)

	require.NoError(t, c.SendAudio(speechChunk()))
	_, err = recvAll(t, c)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestStreamUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opener := newOpener(mock.New())
	opener.err = errors.New("engines are not ready")
	_, err := NewClient(ctx, dial(t, opener))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestDecodeCommand(t *testing.T) {
	msg, err := EncodeSelections([]segment.Selection{{SentenceID: 3, ActiveVariant: segment.VariantPolished}})
	require.NoError(t, err)
	cmd, err := DecodeCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, SelectCommand{Selections: []segment.Selection{{SentenceID: 3, ActiveVariant: segment.VariantPolished}}}, cmd)

	msg, err = EncodeClose()
	require.NoError(t, err)
	cmd, err = DecodeCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, CloseCommand{}, cmd)

	msg, err = EncodeSelections([]segment.Selection{{SentenceID: 0}})
	require.NoError(t, err)
	_, err = DecodeCommand(msg)
	assert.ErrorIs(t, err, ErrBadMessage)
}
