package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "dictation-orchestrator/internal/api/grpc"
	"dictation-orchestrator/internal/service/orchestrator"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time streaming
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

var (
	localStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	cloudStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	polishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	firstStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	if err := readWAVHeader(f); err != nil {
		log.Fatal(err)
	}

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// Longer timeout for real audio
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := grpcapi.NewClient(ctx, conn)
	if err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}
	log.Printf("Connected to %s, session %s", *serverAddr, client.SessionID())

	done := make(chan error, 1)
	go func() { done <- printUpdates(client) }()

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := io.ReadFull(f, audioChunk)
		if n > 0 {
			chunkNum++
			totalBytes += int64(n)
			if err := client.SendAudio(audioChunk[:n]); err != nil {
				log.Fatalf("Failed to send chunk: %v", err)
			}
			// Simulate real-time streaming
			time.Sleep(chunkIntervalMs * time.Millisecond)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime).Round(time.Millisecond))
	log.Println("Closing stream, waiting for final transcripts...")

	if err := client.CloseSend(); err != nil {
		log.Fatalf("Failed to close stream: %v", err)
	}
	if err := <-done; err != nil {
		log.Fatalf("Stream failed: %v", err)
	}
	log.Printf("Stream completed: session=%s", client.SessionID())
}

func readWAVHeader(r io.Reader) error {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return errors.New("not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])
	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		return errors.New("only 16-bit mono PCM is supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}
	return nil
}

func printUpdates(c *grpcapi.Client) error {
	for {
		u, err := c.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(render(u))
	}
}

func render(u orchestrator.TranscriptionUpdate) string {
	meta := dimStyle.Render(fmt.Sprintf("  frame=%d %s", u.FrameIndex, u.Latency.Round(time.Millisecond)))

	switch p := u.Payload.(type) {
	case orchestrator.Transcript:
		style := localStyle
		switch p.Source {
		case orchestrator.SourceCloud:
			style = cloudStyle
		case orchestrator.SourcePolished:
			style = polishedStyle
		}
		line := style.Render(fmt.Sprintf("#%d %-8s %s", p.SentenceID, p.Source, p.Text))
		if u.IsFirst {
			line = firstStyle.Render("▶ ") + line
		}
		if p.Source == orchestrator.SourcePolished && !p.WithinSLA {
			line += warnStyle.Render("  (late)")
		}
		return line + meta
	case orchestrator.Notice:
		style := dimStyle
		switch p.Level {
		case orchestrator.NoticeWarn:
			style = warnStyle
		case orchestrator.NoticeError:
			style = errorStyle
		}
		return style.Render(fmt.Sprintf("⚠ %s: %s", p.Level, p.Message)) + meta
	case orchestrator.Selection:
		return dimStyle.Render(fmt.Sprintf("✓ selections applied: %v", p.Selections))
	default:
		return u.String()
	}
}
