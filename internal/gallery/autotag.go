package gallery

import "strings"

// MatchTags returns the IDs of tags whose name occurs in prompt, compared
// case-insensitively as a literal substring. Order follows the catalog.
// Tags with an empty name never match.
func MatchTags(prompt string, catalog []Tag) []string {
	lower := strings.ToLower(prompt)
	var ids []string
	for _, t := range catalog {
		if t.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t.Name)) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
