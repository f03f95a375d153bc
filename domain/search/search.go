package search

import (
	"strconv"
	"strings"
)

// Query is a parsed message search.
// Free words are matched against message content, flags narrow the results.
type Query struct {
	Terms    string
	IssuerID string
	Limit    int
}

// NewSearchQuery parses a raw search such as `pizza friday --from alice --limit 5`.
// Unknown flags and flags without value are ignored.
func NewSearchQuery(input string, defaultLimit int) Query {
	query := Query{Limit: defaultLimit}

	parts := strings.Fields(input)
	var textTerms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") {
			if i+1 >= len(parts) {
				break
			}
			switch strings.TrimPrefix(part, "--") {
			case "from":
				query.IssuerID = parts[i+1]
			case "limit":
				if n, err := strconv.Atoi(parts[i+1]); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++
			continue
		}
		textTerms = append(textTerms, part)
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

// IsEmpty reports a query that would match everything.
func (q Query) IsEmpty() bool {
	return q.Terms == "" && q.IssuerID == ""
}
