package transcription

import (
	"math"
	"sort"
	"strings"
)

// Normalize puts a raw engine result into canonical form in place:
// segments and words ordered by start time and non-overlapping, every end at
// or after its start, probabilities within [0,1], texts trimmed, segment ids
// assigned in order and the full text rebuilt from the segment texts.
func Normalize(r *Result) {
	segs := r.Transcription.Segments
	if segs == nil {
		segs = []Segment{}
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	texts := make([]string, 0, len(segs))
	var prevEnd float64
	for i := range segs {
		s := &segs[i]
		s.ID = i
		s.Text = strings.TrimSpace(s.Text)
		s.Start = nonNegative(s.Start)
		if i > 0 && s.Start < prevEnd {
			s.Start = prevEnd
		}
		s.End = math.Max(nonNegative(s.End), s.Start)
		s.Words = normalizeWords(s.Words)
		prevEnd = s.End
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	r.Transcription.Segments = segs
	r.Transcription.FullText = strings.Join(texts, " ")

	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	r.LanguageProbability = clamp01(r.LanguageProbability)
	r.Duration = nonNegative(r.Duration)
	if r.Duration < prevEnd {
		r.Duration = prevEnd
	}
	r.DurationAfterVAD = nonNegative(r.DurationAfterVAD)
	if r.DurationAfterVAD == 0 || r.DurationAfterVAD > r.Duration {
		r.DurationAfterVAD = r.Duration
	}
}

func normalizeWords(words []Word) []Word {
	if words == nil {
		return []Word{}
	}
	sort.SliceStable(words, func(i, j int) bool { return words[i].Start < words[j].Start })

	out := words[:0]
	var prevEnd float64
	for _, w := range words {
		w.Word = strings.TrimSpace(w.Word)
		if w.Word == "" {
			continue
		}
		w.Start = nonNegative(w.Start)
		if len(out) > 0 && w.Start < prevEnd {
			w.Start = prevEnd
		}
		w.End = math.Max(nonNegative(w.End), w.Start)
		w.Probability = clamp01(w.Probability)
		prevEnd = w.End
		out = append(out, w)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
