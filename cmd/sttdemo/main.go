package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/sttquickstart/adapters/stt"
	"github.com/satriahrh/sttquickstart/domain/repositories"
	"github.com/satriahrh/sttquickstart/internal/audio"
	"github.com/satriahrh/sttquickstart/usecase"
)

const usage = "usage: sttdemo [%s|all] <audio.wav>\n"

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded, using process environment", zap.Error(err))
	}

	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, usage, strings.Join(stt.Kinds(), "|"))
		os.Exit(2)
	}

	kinds := []string{os.Args[1]}
	if os.Args[1] == "all" {
		kinds = stt.Kinds()
	}
	path := os.Args[2]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunkSize := audio.DefaultChunkSize
	if v := os.Getenv("SPEECH_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chunkSize = n
		}
	}

	failed := false
	for _, kind := range kinds {
		if err := run(ctx, kind, path, chunkSize, logger); err != nil {
			logger.Error("Recognition failed", zap.String("recognizer", kind), zap.Error(err))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// run performs one-shot and then continuous recognition of the file with one recognizer
func run(ctx context.Context, kind, path string, chunkSize int, logger *zap.Logger) error {
	recognizer, err := stt.NewSpeechToText(kind, logger)
	if err != nil {
		return err
	}

	audioData, audioConfig, err := loadAudio(kind, path)
	if err != nil {
		return err
	}

	service := usecase.NewTranscriptionService(recognizer, audioConfig, chunkSize, logger)
	service.Observe(usecase.NewPrintListener(os.Stdout))

	fmt.Printf("== %s: recognize once ==\n", kind)
	hypotheses, err := service.RecognizeOnce(ctx, io.NopCloser(bytes.NewReader(audioData)))
	if err != nil {
		return err
	}
	if len(hypotheses) == 0 {
		fmt.Println("No speech could be recognized.")
	}
	for i, h := range hypotheses {
		line, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("failed to format hypothesis: %w", err)
		}
		fmt.Printf("NBest[%d]: %s\n", i, line)
	}

	fmt.Printf("== %s: continuous recognition ==\n", kind)
	transcripts, err := service.StreamingRecognize(ctx, io.NopCloser(bytes.NewReader(audioData)))
	if err != nil {
		return err
	}
	fmt.Printf("Transcript: %s\n", strings.Join(transcripts, " "))
	return nil
}

// loadAudio reads the file for the given recognizer. The REST endpoint takes the
// WAV file as is; the others take raw PCM frames.
func loadAudio(kind, path string) ([]byte, repositories.AudioConfig, error) {
	pcm, err := audio.OpenWAV(path)
	if err != nil {
		return nil, repositories.AudioConfig{}, err
	}

	audioConfig := repositories.AudioConfig{
		SampleRate: pcm.Format.SampleRate,
		BitDepth:   pcm.BitDepth,
		Channels:   pcm.Format.NumChannels,
		Encoding:   "LINEAR16",
	}

	if kind != stt.KindREST {
		return pcm.Data, audioConfig, nil
	}

	raw, err := audio.ReadFile(path)
	if err != nil {
		return nil, repositories.AudioConfig{}, err
	}
	audioConfig.Encoding = "WAV"
	return raw, audioConfig, nil
}
