package speech

import (
	"regexp"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var (
	htmlTagRE        = regexp.MustCompile(`<[^>]*>`)
	markdownLinkRE   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	tableSeparatorRE = regexp.MustCompile(`^\s*\|?\s*[-=:\s|]+\|?\s*$`)
	spaceRE          = regexp.MustCompile(`[ \t]+`)
)

// CleanText strips markdown and markup that a synthesizer would read out
// literally.
func CleanText(text string) string {
	text = htmlTagRE.ReplaceAllString(text, "")
	text = markdownLinkRE.ReplaceAllString(text, "$1")
	text = strings.NewReplacer(
		"*", "",
		"#", "",
		"_", " ",
		"~", "",
		"`", "",
		"[", "",
		"]", "",
	).Replace(text)

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, "-") && tableSeparatorRE.MatchString(line) {
			continue
		}
		line = strings.ReplaceAll(line, "|", " ")
		line = spaceRE.ReplaceAllString(strings.TrimSpace(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
)

// SplitSentences cleans text and breaks it into sentences for incremental
// synthesis.
func SplitSentences(text string) []string {
	text = CleanText(text)
	if text == "" {
		return nil
	}
	tokenizerOnce.Do(func() {
		tokenizer, _ = english.NewSentenceTokenizer(nil)
	})
	if tokenizer == nil {
		return []string{text}
	}
	var out []string
	for _, s := range tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
