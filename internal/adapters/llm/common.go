package llm

// estimateTokens is a cheap heuristic: roughly four characters per
// token for English text. Good enough for budget decisions.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// supportsModel treats an empty catalog as unconstrained.
func supportsModel(catalog []string, model string) bool {
	if len(catalog) == 0 {
		return true
	}
	for _, m := range catalog {
		if m == model {
			return true
		}
	}
	return false
}
