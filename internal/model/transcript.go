package model

// TranscriptSegment is one timed span of recognized speech, in seconds.
type TranscriptSegment struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Text  string  `json:"text" yaml:"text"`
}

// Transcript is the full output of the transcription stage.
type Transcript struct {
	Text     string              `json:"text" yaml:"text"`
	Duration float64             `json:"duration" yaml:"duration"`
	Language string              `json:"language,omitempty" yaml:"language,omitempty"`
	Segments []TranscriptSegment `json:"segments" yaml:"segments"`
}
