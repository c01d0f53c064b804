// Package wordcount counts words in text spans that may cut through words.
package wordcount

import "unicode"

// Sentinel stands in for the character beyond a document boundary.
const Sentinel = ' '

// IsWordRune reports whether r belongs to a run of Latin-script word characters.
func IsWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '\'', r == '-':
		return true
	}
	return false
}

// IsCJK reports whether r is an ideographic or syllabic character counted
// as a word on its own.
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Count returns the number of words in span. before and after are the
// characters adjacent to the span in the surrounding document; a word run
// touching either edge of the span that continues across it is not counted.
func Count(span string, before, after rune) int {
	count := 0
	inWord := false
	// continued marks the current run as the tail of a word before the span.
	continued := false
	first := true
	for _, r := range span {
		switch {
		case IsCJK(r):
			count++
			inWord = false
			continued = false
		case IsWordRune(r):
			if !inWord {
				inWord = true
				continued = first && IsWordRune(before)
				if !continued {
					count++
				}
			}
		default:
			inWord = false
			continued = false
		}
		first = false
	}
	if inWord && !continued && IsWordRune(after) {
		count--
	}
	return count
}

// CountText counts the words of a whole document.
func CountText(text string) int {
	return Count(text, Sentinel, Sentinel)
}
