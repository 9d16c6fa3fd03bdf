package utils

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>)"']+`)

// ExtractLinks returns the distinct http(s) URLs found in the given texts,
// in order of first appearance
func ExtractLinks(texts ...string) []string {
	seen := make(map[string]struct{})
	var links []string

	for _, text := range texts {
		for _, link := range urlPattern.FindAllString(text, -1) {
			link = strings.TrimRight(link, ".,;:!?")
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	return links
}
