// Package google provides a cloud speech engine backed by Google Cloud
// Speech-to-Text.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"dictation-orchestrator/internal/service/audio/pcm"
)

// ErrRateLimited is returned when a frame cannot get a request slot before its
// context ends.
var ErrRateLimited = errors.New("google: request rate limit exceeded")

// Config holds Google Speech-to-Text settings.
type Config struct {
	LanguageCode      string        `env:"LANGUAGE_CODE" envDefault:"en-US"`
	SampleRateHz      int           `env:"SAMPLE_RATE_HZ" envDefault:"16000"`
	AudioEncoding     string        `env:"AUDIO_ENCODING" envDefault:"FLAC"`
	Model             string        `env:"MODEL" envDefault:"latest_short"`
	EnablePunctuation bool          `env:"ENABLE_PUNCTUATION" envDefault:"true"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"10"`
	Burst             int           `env:"BURST" envDefault:"4"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"3s"`
	CredentialsFile   string        `env:"CREDENTIALS_FILE"`
	Endpoint          string        `env:"ENDPOINT"`
}

// DefaultConfig returns sensible defaults for short dictation frames.
func DefaultConfig() Config {
	return Config{
		LanguageCode:      "en-US",
		SampleRateHz:      16000,
		AudioEncoding:     "FLAC",
		Model:             "latest_short",
		EnablePunctuation: true,
		RequestsPerSecond: 10,
		Burst:             4,
		RequestTimeout:    3 * time.Second,
	}
}

// recognizeFunc issues one synchronous recognition request.
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Engine implements stt.Engine with one Recognize call per frame.
type Engine struct {
	cfg       Config
	encoding  speechpb.RecognitionConfig_AudioEncoding
	client    *speech.Client
	recognize recognizeFunc
	limiter   *rate.Limiter
}

// New creates a Google engine. Credentials come from CredentialsFile or, when
// empty, from Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}

	e := newEngine(cfg, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	})
	e.client = c
	return e, nil
}

func newEngine(cfg Config, recognize recognizeFunc) *Engine {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Engine{
		cfg:       cfg,
		encoding:  parseAudioEncoding(cfg.AudioEncoding),
		recognize: recognize,
		limiter:   rate.NewLimiter(limit, max(cfg.Burst, 1)),
	}
}

// Transcribe implements stt.Engine. Frames are sent as FLAC or LINEAR16
// depending on the configured encoding.
func (e *Engine) Transcribe(ctx context.Context, frame []float32) (string, error) {
	if len(frame) == 0 {
		return "", nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	content, err := e.encode(frame)
	if err != nil {
		return "", err
	}

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := e.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   e.encoding,
			SampleRateHertz:            int32(e.cfg.SampleRateHz),
			LanguageCode:               e.cfg.LanguageCode,
			Model:                      e.cfg.Model,
			EnableAutomaticPunctuation: e.cfg.EnablePunctuation,
			AudioChannelCount:          1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("google: recognize: %w", err)
	}
	return joinTranscripts(resp), nil
}

func (e *Engine) encode(frame []float32) ([]byte, error) {
	switch e.encoding {
	case speechpb.RecognitionConfig_FLAC:
		b, err := pcm.EncodeFLAC(frame, e.cfg.SampleRateHz)
		if err != nil {
			return nil, fmt.Errorf("google: encode flac: %w", err)
		}
		return b, nil
	case speechpb.RecognitionConfig_LINEAR16:
		return pcm.ToLinear16(frame), nil
	default:
		return nil, fmt.Errorf("google: unsupported frame encoding %s", e.encoding)
	}
}

// Close releases the underlying client.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// joinTranscripts concatenates the top alternative of every result.
func joinTranscripts(resp *speechpb.RecognizeResponse) string {
	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// parseAudioEncoding maps a config string to an encoding, defaulting to
// LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
