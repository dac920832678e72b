package utils

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TruncationMarker is appended to messages cut to the classifier size limit
const TruncationMarker = "\n[... message truncated ...]"

var linkPattern = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)

// TextProcessor prepares message text before it is handed to a classifier
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextProcessor{
		logger: logger,
	}
}

// ProcessText sanitizes, normalizes and masks the links of a message, then
// truncates it to maxSize bytes. The result is always valid UTF-8.
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	text = tp.SanitizeUTF8(text)
	text = NormalizeWhitespace(text)
	text = MaskLinks(text)
	return tp.TruncateText(text, maxSize)
}

// TruncateText cuts text to at most maxSize bytes on a rune boundary and
// appends TruncationMarker. A maxSize of zero or less disables the limit.
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	cut := maxSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	tp.logger.Debug("Message truncated for classifier",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", cut),
		zap.Int("max_size", maxSize))

	return text[:cut] + TruncationMarker
}

// SanitizeUTF8 drops invalid UTF-8 bytes and control characters other than
// line breaks and tabs
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	valid := strings.ToValidUTF8(text, "")
	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, valid)

	if len(clean) != len(text) {
		tp.logger.Debug("Message sanitized",
			zap.Int("original_size", len(text)),
			zap.Int("sanitized_size", len(clean)))
	}
	return clean
}

// NormalizeWhitespace collapses runs of blanks within a line and drops
// empty lines
func NormalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// MaskLinks replaces every http(s) link with its host, so the classifier
// judges the wording without receiving full URLs
func MaskLinks(text string) string {
	return linkPattern.ReplaceAllStringFunc(text, func(link string) string {
		u, err := url.Parse(link)
		if err != nil || u.Hostname() == "" {
			return "[link]"
		}
		return "[link: " + strings.ToLower(u.Hostname()) + "]"
	})
}
