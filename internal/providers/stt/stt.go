package stt

import "context"

// EventKind discriminates the events a live recognition stream emits.
type EventKind int

const (
	KindSpeechStarted EventKind = iota
	KindTranscript
	KindError
	KindClosed
)

// Result is one recognition result from the vendor stream. Offsets are
// seconds from the start of the stream.
type Result struct {
	Text       string
	SpeakerID  *int
	Start      float64
	End        float64
	Confidence float64
	IsFinal    bool
	Words      []Word
}

type Word struct {
	Word       string
	Start      float64
	End        float64
	Confidence float64
}

type Event struct {
	Kind   EventKind
	Result *Result // set for KindTranscript
	Err    error   // set for KindError
}

type StreamConfig struct {
	LanguageCode   string
	SampleRateHz   int32
	Diarization    bool
	InterimResults bool
}

// Stream is one live upstream recognition connection.
type Stream interface {
	// Send pushes raw audio to the recognizer.
	Send(ctx context.Context, audio []byte) error
	// KeepAlive nudges the vendor connection so it is not idled out.
	KeepAlive(ctx context.Context) error
	// Events yields stream events until the stream closes; the channel is
	// closed after KindClosed or a terminal KindError.
	Events() <-chan Event
	Close() error
}

// Provider opens live recognition streams.
type Provider interface {
	Connect(ctx context.Context, cfg StreamConfig) (Stream, error)
	Close() error
}
