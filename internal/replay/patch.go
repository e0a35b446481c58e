package replay

// Apply performs a literal offset+length text replacement on base and
// returns the new content. Offsets and lengths count Unicode code points.
//
// Noisy telemetry is tolerated rather than rejected: an offset past the end
// of base pads base with spaces up to the offset, and a length that extends
// past the end truncates to the end instead of erroring. Both are deliberate
// leniency for out-of-order or lossy recordings, not silent repair of the
// patch itself.
func Apply(base string, offset, length int, text string) string {
	runes := []rune(base)

	if offset < 0 {
		offset = 0
	}
	if offset > len(runes) {
		padded := make([]rune, offset)
		copy(padded, runes)
		for i := len(runes); i < offset; i++ {
			padded[i] = ' '
		}
		runes = padded
	}

	end := offset + length
	if end < offset {
		end = offset
	}
	if end > len(runes) {
		end = len(runes)
	}

	return string(runes[:offset]) + text + string(runes[end:])
}
