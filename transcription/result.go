package transcription

// Word is one timestamped token inside a segment.
type Word struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Word        string  `json:"word"`
	Probability float64 `json:"probability"`
}

// Segment is a phrase-level span of the transcript.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// Transcript holds the text content of a result.
type Transcript struct {
	FullText string    `json:"full_text"`
	Segments []Segment `json:"segments"`
}

// ModelInfo describes the model that produced a result.
type ModelInfo struct {
	ModelSize   string `json:"model_size"`
	ComputeType string `json:"compute_type"`
	BeamSize    int    `json:"beam_size"`
}

// Result is the wire shape returned for a transcription.
type Result struct {
	Filename            string     `json:"filename"`
	Language            string     `json:"language"`
	LanguageProbability float64    `json:"language_probability"`
	Duration            float64    `json:"duration"`
	DurationAfterVAD    float64    `json:"duration_after_vad"`
	Transcription       Transcript `json:"transcription"`
	ModelInfo           *ModelInfo `json:"model_info,omitempty"`
}
