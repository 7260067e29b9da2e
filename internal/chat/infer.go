package chat

import "strings"

// prepositions that can introduce a city mention.
var cityPrepositions = map[string]bool{
	"in":  true,
	"at":  true,
	"for": true,
}

// InferPreferredCity guesses a city from a user message: the word after
// the first "in"/"at"/"for". Short tokens are rejected to avoid noise
// like "in it". Returns "" when nothing plausible is found; callers
// treat the result as best effort and never override an explicit
// preference with it.
func InferPreferredCity(message string) string {
	tokens := strings.Fields(strings.ToLower(message))
	for i := 0; i < len(tokens)-1; i++ {
		if !cityPrepositions[tokens[i]] {
			continue
		}
		candidate := strings.Trim(tokens[i+1], ".,!?;:'\"()")
		if len(candidate) <= 2 {
			continue
		}
		return titleCase(candidate)
	}
	return ""
}
