// Command transcript-viewer shows session events from Kafka in a browser.
package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"dictation-orchestrator/internal/models"
	"dictation-orchestrator/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, logger zerolog.Logger) error {
	// Partition reader without consumer group works better through port-forward
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-time.Hour)); err != nil {
		logger.Warn().Err(err).Msg("Failed to seek, reading from the start")
	}
	logger.Info().Msg("Consuming last hour of events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		env, err := decodeEvent(msg.Value)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping malformed event")
			continue
		}

		logger.Debug().
			Str("eventType", env.EventType).
			Str("sessionId", env.SessionID).
			Str("text", truncate(env.Text+env.Message, 40)).
			Msg("Received event")
		hub.Publish(ctx, msg.Value)
	}
}

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topics := flag.String("topics", strings.Join([]string{models.EventTranscript, models.EventNotice, models.EventSelection}, ","), "Topics to follow (comma-separated)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = "console"
	logging.Init(logCfg)
	logger := logging.WithComponent("transcript-viewer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.run(gctx)
		return nil
	})

	brokerList := strings.Split(*brokers, ",")
	for _, topic := range strings.Split(*topics, ",") {
		topicLogger := logger.With().Str("topic", topic).Logger()
		g.Go(func() error {
			return consumeKafka(gctx, hub, brokerList, topic, topicLogger)
		})
	}

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logger.Fatal().Err(err).Msg("Missing static assets")
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", wsHandler(gctx, hub))

	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		logger.Info().Str("addr", *addr).Str("brokers", *brokers).Str("topics", *topics).Msg("Transcript viewer starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Transcript viewer failed")
	}
}
