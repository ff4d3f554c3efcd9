package pagination

import (
	"strings"
)

// RelNext is the Link relation that points at the following page.
const RelNext = "next"

// ParseLinkHeader parses a Link header into a map of relation name to URL.
//
// Example:
//
//	<https://shop/admin/api/2024-01/orders.json?page_info=abc>; rel="next"
//
// Entries without an extractable <url> or without a rel parameter are skipped.
func ParseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	if strings.TrimSpace(header) == "" {
		return links
	}

	for _, entry := range strings.Split(header, ",") {
		target, params, ok := splitLinkEntry(entry)
		if !ok {
			continue
		}

		for _, param := range params {
			key, value, found := strings.Cut(param, "=")
			if !found || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"`)
			// rel may carry several space separated relation types
			for _, rel := range strings.Fields(value) {
				if _, exists := links[rel]; !exists {
					links[rel] = target
				}
			}
		}
	}

	return links
}

// splitLinkEntry extracts the URL between angle brackets and the
// semicolon separated parameters that follow it.
func splitLinkEntry(entry string) (string, []string, bool) {
	start := strings.Index(entry, "<")
	end := strings.Index(entry, ">")
	if start < 0 || end <= start+1 {
		return "", nil, false
	}

	target := strings.TrimSpace(entry[start+1 : end])
	if target == "" {
		return "", nil, false
	}

	var params []string
	for _, p := range strings.Split(entry[end+1:], ";") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}

	return target, params, true
}
