package models

// WordTiming is the per-word timing the upstream recognizer attaches to a
// segment when word-level offsets are enabled. Offsets are seconds from
// session start.
type WordTiming struct {
	Word       string  `bson:"word" json:"word"`
	Start      float64 `bson:"start" json:"start"`
	End        float64 `bson:"end" json:"end"`
	Confidence float64 `bson:"confidence" json:"confidence"`
}

// TranscriptSegment is one recognizer result, immutable once emitted.
// Interim segments (IsFinal=false) may be revised by later results; only
// final segments flow downstream.
type TranscriptSegment struct {
	SessionID  string  `bson:"session_id" json:"session_id"`
	SpeakerID  *int    `bson:"speaker_id,omitempty" json:"speaker_id,omitempty"`
	Text       string  `bson:"text" json:"text"`
	Start      float64 `bson:"start" json:"start"` // seconds from session start
	End        float64 `bson:"end" json:"end"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	IsFinal    bool    `bson:"is_final" json:"is_final"`

	Words []WordTiming `bson:"words,omitempty" json:"words,omitempty"`
}
