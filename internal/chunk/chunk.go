// Package chunk splits finished transcripts into overlapping bounded-length
// pieces for corpus storage. Boundaries are counted in Unicode code points,
// not tokens: the consumer is token-length-limited, but character counting
// keeps chunking reproducible and tokenizer-free, so the approximation is
// kept rather than replaced.
package chunk

import "strings"

// Split cuts text into chunks of at most targetChars code points, with
// consecutive chunks overlapping by up to overlapChars code points.
//
// targetChars <= 0, or text that already fits, degrades to a single-element
// passthrough. The emitted windows cover every index of text with no gaps,
// and the loop makes strict forward progress even under pathological overlap
// settings (overlap is clamped to half the target).
func Split(text string, targetChars, overlapChars int) []string {
	if targetChars <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	n := len(runes)
	if n <= targetChars {
		return []string{text}
	}

	overlap := overlapChars
	if overlap < 0 {
		overlap = 0
	}
	if overlap > targetChars/2 {
		overlap = targetChars / 2
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + targetChars
		if end > n {
			end = n
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
		if end == n {
			break
		}
		next := end - overlap
		if next <= start {
			// Unreachable with the clamp above; keeps the loop finite no
			// matter what.
			next = end
		}
		start = next
	}
	return chunks
}
