// Package transcript holds the canned phrases returned by the offline recognizers.
package transcript

// Canned picks a phrase from the amount of audio received
func Canned(size int) string {
	switch {
	case size > 64000:
		return "Hello, this is a longer test of the speech recognition quickstart."
	case size > 16000:
		return "The quick brown fox jumps over the lazy dog."
	case size > 1000:
		return "Hello world."
	default:
		return "Hi."
	}
}
