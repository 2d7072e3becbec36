package subtitles

import (
	"regexp"
	"strings"
)

// japaneseGapRe matches a whitespace run between two Japanese characters
// (hiragana, katakana or kanji). Whisper tends to insert these mid-word.
var japaneseGapRe = regexp.MustCompile(`([\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FFF}])\s+([\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FFF}])`)

var spaceRunRe = regexp.MustCompile(`\s+`)

// textFixes run in order after the whitespace cleanup. Later entries that
// overlap an earlier one never fire; the order is part of the contract.
var textFixes = [][2]string{
	{"なが自信", "ない自信"},
	{"おりよう", "折れよう"},
	{"ら自信", "たら自信"},
	{"ですけど あの", "ですけど、あの"},
	{"ですよ あの", "ですよ、あの"},
	{"んですけど あの", "んですけど、あの"},
	{"じゃないですか あの", "じゃないですか、あの"},
}

// FixText cleans one transcribed line: gaps inside Japanese words are
// closed, remaining whitespace runs collapse to a single space and known
// mis-transcriptions are rewritten.
func FixText(text string) string {
	text = japaneseGapRe.ReplaceAllString(text, "${1}${2}")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	for _, fix := range textFixes {
		text = strings.ReplaceAll(text, fix[0], fix[1])
	}
	return text
}

// FixCues applies FixText to every cue. Timing is never touched.
func FixCues(cues []Cue) []Cue {
	out := make([]Cue, len(cues))
	for i, cue := range cues {
		cue.Text = FixText(cue.Text)
		out[i] = cue
	}
	return out
}
