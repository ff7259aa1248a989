package whispercli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kbukum/whisperd/transcription"
)

// cliOutput is the subset of whisper-cli's -ojf document the engine reads.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []cliSegment `json:"transcription"`
}

type cliOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type cliSegment struct {
	Offsets cliOffsets `json:"offsets"`
	Text    string     `json:"text"`
	Tokens  []cliToken `json:"tokens"`
}

type cliToken struct {
	Text    string     `json:"text"`
	Offsets cliOffsets `json:"offsets"`
	P       float64    `json:"p"`
}

func parseOutput(raw []byte) (*cliOutput, error) {
	var out cliOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse whisper-cli output: %w", err)
	}
	return &out, nil
}

func (o *cliOutput) toResult(job transcription.Job) *transcription.Result {
	res := &transcription.Result{
		Filename: job.Filename,
		Language: o.Result.Language,
		Transcription: transcription.Transcript{
			Segments: make([]transcription.Segment, 0, len(o.Transcription)),
		},
	}
	if res.Language == "" || res.Language == "auto" {
		res.Language = job.Language
	}

	for _, s := range o.Transcription {
		seg := transcription.Segment{
			Start: seconds(s.Offsets.From),
			End:   seconds(s.Offsets.To),
			Text:  s.Text,
			Words: mergeTokens(s.Tokens),
		}
		res.Transcription.Segments = append(res.Transcription.Segments, seg)
		if seg.End > res.Duration {
			res.Duration = seg.End
		}
	}
	return res
}

type wordAcc struct {
	word  transcription.Word
	probs float64
	n     int
}

// mergeTokens joins sub-word tokens into words. A token with a leading
// space starts a new word; control tokens such as [_BEG_] are dropped.
func mergeTokens(tokens []cliToken) []transcription.Word {
	words := make([]transcription.Word, 0, len(tokens))
	var cur *wordAcc

	flush := func() {
		if cur == nil {
			return
		}
		cur.word.Word = strings.TrimSpace(cur.word.Word)
		if cur.word.Word != "" {
			cur.word.Probability = cur.probs / float64(cur.n)
			words = append(words, cur.word)
		}
		cur = nil
	}

	for _, t := range tokens {
		if t.Text == "" || strings.HasPrefix(t.Text, "[_") {
			continue
		}
		if cur == nil || strings.HasPrefix(t.Text, " ") {
			flush()
			cur = &wordAcc{word: transcription.Word{Start: seconds(t.Offsets.From)}}
		}
		cur.word.Word += t.Text
		cur.word.End = seconds(t.Offsets.To)
		cur.probs += t.P
		cur.n++
	}
	flush()
	return words
}

func seconds(ms int64) float64 {
	return float64(ms) / 1000
}
