package answer

import (
	"regexp"
	"sort"
	"strconv"
)

// citationPattern matches inline passage markers like [p0] or [p12].
var citationPattern = regexp.MustCompile(`\[p(\d+)\]`)

// ExtractCitations returns the passage indices cited in text, 0-based,
// deduplicated and in ascending order. Markers referencing passages
// outside [0, passageCount) are discarded, the model sometimes invents
// them.
func ExtractCitations(text string, passageCount int) []int {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []int{}
	}

	seen := make(map[int]bool, len(matches))
	citations := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n >= passageCount {
			continue
		}
		if !seen[n] {
			seen[n] = true
			citations = append(citations, n)
		}
	}

	sort.Ints(citations)
	return citations
}
