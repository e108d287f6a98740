package nlsql

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var errNoSQL = errors.New("no SQL statement in model response")

var leadingStatement = regexp.MustCompile(`(?is)\b(select|with)\b`)

type modelAnswer struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// extractSQL pulls the statement out of a model response: JSON first,
// then the first SELECT/WITH statement found in free text.
func extractSQL(content string) (sql, explanation string, err error) {
	body := stripFences(strings.TrimSpace(content))

	var ans modelAnswer
	if jerr := json.Unmarshal([]byte(body), &ans); jerr == nil {
		sql = cleanStatement(ans.SQL)
		if sql == "" {
			return "", "", errNoSQL
		}
		return sql, strings.TrimSpace(ans.Explanation), nil
	}
	if i := strings.Index(body, "{"); i >= 0 {
		if j := strings.LastIndex(body, "}"); j > i {
			if jerr := json.Unmarshal([]byte(body[i:j+1]), &ans); jerr == nil && strings.TrimSpace(ans.SQL) != "" {
				return cleanStatement(ans.SQL), strings.TrimSpace(ans.Explanation), nil
			}
		}
	}

	loc := leadingStatement.FindStringIndex(body)
	if loc == nil {
		return "", "", errNoSQL
	}
	stmt := body[loc[0]:]
	if k := strings.Index(stmt, ";"); k >= 0 {
		stmt = stmt[:k]
	} else if k := strings.Index(stmt, "\n\n"); k >= 0 {
		stmt = stmt[:k]
	}
	sql = cleanStatement(stmt)
	if sql == "" {
		return "", "", errNoSQL
	}
	return sql, "", nil
}

func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// drop the language tag
		if tag := strings.TrimSpace(rest[:nl]); !strings.ContainsAny(tag, " {") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func cleanStatement(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "; \t\n")
	return strings.TrimSpace(s)
}
