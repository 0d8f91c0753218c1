package stt

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding speechpb.RecognitionConfig_AudioEncoding
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:        c,
		Encoding: speechpb.RecognitionConfig_LINEAR16,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Connect(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = 16000
	}

	recog, err := g.c.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   g.Encoding,
		SampleRateHertz:            cfg.SampleRateHz,
		LanguageCode:               cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		EnableWordConfidence:       true,
	}
	if cfg.Diarization {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
		}
	}

	if err := recog.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         rc,
				InterimResults: cfg.InterimResults,
			},
		},
	}); err != nil {
		_ = recog.CloseSend()
		return nil, err
	}

	s := &googleStream{recog: recog, events: make(chan Event, 32)}
	go s.recvLoop()
	return s, nil
}

type googleStream struct {
	recog speechpb.Speech_StreamingRecognizeClient

	sendMu sync.Mutex
	closed bool

	events    chan Event
	spokeOnce sync.Once
}

func (s *googleStream) Send(_ context.Context, audio []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	return s.recog.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// KeepAlive sends an empty audio frame so the vendor does not idle the
// connection out between utterances.
func (s *googleStream) KeepAlive(ctx context.Context) error {
	return s.Send(ctx, nil)
}

func (s *googleStream) Events() <-chan Event { return s.events }

func (s *googleStream) Close() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.recog.CloseSend()
}

func (s *googleStream) recvLoop() {
	defer close(s.events)
	for {
		resp, err := s.recog.Recv()
		if err == io.EOF {
			s.events <- Event{Kind: KindClosed}
			return
		}
		if err != nil {
			s.events <- Event{Kind: KindError, Err: err}
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			s.spokeOnce.Do(func() {
				s.events <- Event{Kind: KindSpeechStarted}
			})

			alt := r.Alternatives[0]
			res := &Result{
				Text:       alt.Transcript,
				Confidence: float64(alt.Confidence),
				IsFinal:    r.IsFinal,
				End:        r.ResultEndTime.AsDuration().Seconds(),
			}
			for i, w := range alt.Words {
				if i == 0 {
					res.Start = w.StartTime.AsDuration().Seconds()
					if w.SpeakerTag != 0 {
						tag := int(w.SpeakerTag)
						res.SpeakerID = &tag
					}
				}
				res.Words = append(res.Words, Word{
					Word:       w.Word,
					Start:      w.StartTime.AsDuration().Seconds(),
					End:        w.EndTime.AsDuration().Seconds(),
					Confidence: float64(w.Confidence),
				})
			}
			s.events <- Event{Kind: KindTranscript, Result: res}
		}
	}
}
