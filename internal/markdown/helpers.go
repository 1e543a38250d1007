package markdown

import (
	"strings"
	"unicode/utf16"
)

// TelegramMessageMaxLength is measured in UTF-16 code units.
const TelegramMessageMaxLength = 4096

// Taken from https://core.telegram.org/bots/api#markdownv2-style.
const mdV2SpecialChars = `\_*[]()~>#+-=|{}.!` + "`"

//nolint:gochecknoglobals // Lookup table meant to be immutable.
var mdV2Lookup = func() [256]bool {
	var m [256]bool
	for i := range len(mdV2SpecialChars) {
		m[mdV2SpecialChars[i]] = true
	}
	return m
}()

func EscapeV2(input string) string {
	charsToEscape := 0

	for i := range len(input) {
		if mdV2Lookup[input[i]] {
			charsToEscape++
		}
	}
	if charsToEscape == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + charsToEscape)

	for i := range len(input) {
		c := input[i]
		if mdV2Lookup[c] {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

// EscapeAndSplitV2 escapes plain text and cuts it into messages of at most
// limit UTF-16 units each. Cuts prefer the last space or newline in the
// second half of a message and never separate an escape from its character.
func EscapeAndSplitV2(text string, limit int) []string {
	if limit < 4 {
		limit = TelegramMessageMaxLength
	}

	var (
		messages  []string
		cur       []rune
		curLen    int
		lastBreak = -1
	)

	for _, r := range text {
		unit := []rune{r}
		if r < 256 && mdV2Lookup[r] {
			unit = []rune{'\\', r}
		}
		unitLen := utf16Len(unit)

		if curLen+unitLen > limit {
			cut := len(cur)
			if lastBreak > 0 && utf16Len(cur[:lastBreak]) >= limit/2 {
				cut = lastBreak
			}

			messages = append(messages, string(cur[:cut]))
			cur = append([]rune(nil), cur[cut:]...)
			curLen = utf16Len(cur)
			lastBreak = -1
		}

		cur = append(cur, unit...)
		curLen += unitLen

		if r == '\n' || r == ' ' {
			lastBreak = len(cur)
		}
	}

	if len(cur) > 0 {
		messages = append(messages, string(cur))
	}

	return messages
}

func utf16Len(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += utf16.RuneLen(r)
	}
	return n
}
