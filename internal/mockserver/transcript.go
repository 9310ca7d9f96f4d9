package mockserver

import (
	"strings"
	"time"
	"unicode"

	"github.com/satriahrh/sttquickstart/internal/transcript"
)

// transcriptFor returns the fixed transcript, or a canned phrase for the audio size
func transcriptFor(size int, fixed string) string {
	if fixed != "" {
		return fixed
	}
	return transcript.Canned(size)
}

// partialTranscript returns the leading words of text in proportion to progress in [0, 1]
func partialTranscript(text string, progress float64) string {
	words := strings.Fields(lexical(text))
	if len(words) == 0 {
		return ""
	}
	if progress > 1 {
		progress = 1
	}
	n := int(float64(len(words))*progress + 0.5)
	if n < 1 {
		n = 1
	}
	return strings.Join(words[:n], " ")
}

// lexical lowercases and strips punctuation, the way the service reports its Lexical form
func lexical(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)
}

// audioDuration is the playback length of 16-bit mono PCM at the given sample rate
func audioDuration(size, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return time.Duration(size) * time.Second / time.Duration(sampleRate*2)
}

// ticks converts to the service's 100-nanosecond units
func ticks(d time.Duration) int64 {
	return int64(d / 100)
}
