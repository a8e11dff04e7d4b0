package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "dictation-orchestrator/internal/api/grpc"
	"dictation-orchestrator/internal/service/audio/pcm"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/segment"
)

const (
	sampleRate = 16000
	frameMs    = 100
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	frames := flag.Int("frames", 20, "Number of 100ms tone frames to send")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := grpcapi.NewClient(ctx, conn)
	if err != nil {
		log.Fatalf("failed to open stream: %v", err)
	}
	log.Printf("Connected to server, session %s", client.SessionID())

	done := make(chan struct{})
	go func() {
		defer close(done)
		reverted := false
		for {
			u, err := client.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				log.Printf("stream failed: %v", err)
				return
			}
			log.Printf("Received %v", u)

			// Flip the first polished sentence back to raw to exercise selections.
			if t, ok := u.Payload.(orchestrator.Transcript); ok && t.Source == orchestrator.SourcePolished && !reverted {
				reverted = true
				sel := segment.Selection{SentenceID: t.SentenceID, ActiveVariant: segment.VariantRaw}
				if err := client.SendSelections(sel); err != nil {
					log.Printf("failed to send selection: %v", err)
				}
			}
		}
	}()

	for i := range *frames {
		if err := client.SendAudio(toneFrame(i)); err != nil {
			log.Fatalf("failed to send frame: %v", err)
		}
		time.Sleep(frameMs * time.Millisecond)
	}

	if err := client.CloseSend(); err != nil {
		log.Fatalf("failed to close stream: %v", err)
	}
	<-done
	log.Printf("Stream completed: session=%s", client.SessionID())
}

// toneFrame renders frame i of a continuous 440Hz tone.
func toneFrame(i int) []byte {
	n := sampleRate * frameMs / 1000
	samples := make([]float32, n)
	for j := range samples {
		t := float64(i*n+j) / sampleRate
		samples[j] = float32(0.2 * math.Sin(2*math.Pi*440*t))
	}
	return pcm.ToLinear16(samples)
}
