package platform

import "strings"

var authFailurePatterns = []string{"401", "unauthorized", "token", "authentication"}

// IsAuthFailure guesses from a provider error message whether the stored
// credential has expired or been revoked.
func IsAuthFailure(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range authFailurePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
