package stt

import "errors"

var (
	// ErrUnknownRecognizer is returned by NewSpeechToText for an unsupported kind
	ErrUnknownRecognizer = errors.New("unknown recognizer")
	// ErrSessionClosed is returned when audio is written after the session ended
	ErrSessionClosed = errors.New("recognition session closed")
	// ErrMissingCredentials is returned when no subscription key is configured
	ErrMissingCredentials = errors.New("speech subscription key is required")
)
