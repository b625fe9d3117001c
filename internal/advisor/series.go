package advisor

import "strings"

// ExtractSeriesKeys scans the user message for mentions of known series
// keys. Matching is case-insensitive and order follows the known list, so
// results are deterministic regardless of message phrasing.
func ExtractSeriesKeys(text string, known []string) []string {
	lower := strings.ToLower(text)
	var result []string
	for _, key := range known {
		if key == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(key)) {
			result = append(result, key)
		}
	}
	return result
}
