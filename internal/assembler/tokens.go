package assembler

// charsPerToken is the character-to-token heuristic. Real tokenizers
// average close to four characters per token on English prose, and the
// budget ceilings downstream leave headroom for the estimate's error.
const charsPerToken = 4

// elisionMarker replaces the removed middle of a truncated item, so the
// model sees the cut instead of silently missing text.
const elisionMarker = "\n[... truncated ...]\n"

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// truncateMiddle cuts a text down to at most maxTokens by removing its
// middle. Head and tail survive: retrieved records tend to carry their
// identity up front and their conclusion at the end, while the middle
// is elaboration.
func truncateMiddle(text string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	if maxChars <= len(elisionMarker) {
		cut := maxChars
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		return text[:cut]
	}

	keep := maxChars - len(elisionMarker)
	head := keep / 2
	tail := keep - head

	// Back off to rune boundaries so the cut never splits a character.
	for head > 0 && !isRuneStart(text[head]) {
		head--
	}
	tailStart := len(text) - tail
	for tailStart < len(text) && !isRuneStart(text[tailStart]) {
		tailStart++
	}

	return text[:head] + elisionMarker + text[tailStart:]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
