// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datastore

import (
	"fmt"
	"regexp"
	"strings"
)

// Keywords that modify data or schema. Matched on word boundaries so
// column names like created_at or updated_at pass.
var forbiddenKeywordRe = regexp.MustCompile(
	`\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|EXECUTE|EXEC|MERGE|REPLACE|COPY|CALL|VACUUM|LISTEN|NOTIFY)\b`)

var (
	lineCommentRe    = regexp.MustCompile(`(?m)--.*$`)
	blockCommentRe   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	leadingKeywordRe = regexp.MustCompile(`^\s*(SELECT|WITH)\b`)
)

// ValidateReadOnly checks that a SQL statement is a single read-only query.
//
// Description:
//
//	Fails closed: anything that is not provably a single SELECT (or WITH)
//	statement is rejected. One trailing semicolon is tolerated and
//	stripped. Comments are removed before keyword checks so a forbidden
//	verb cannot hide inside one, and an allowed verb inside a comment
//	cannot mask the statement head.
//
// Inputs:
//   - sqlText: The raw statement text, typically model-generated.
//
// Outputs:
//   - string: The normalized statement (trimmed, trailing semicolon removed),
//     safe to hand to the database when error is nil.
//   - error: Non-nil with a violation message explaining the rejection.
//
// Thread Safety: ValidateReadOnly is pure and safe for concurrent use.
func ValidateReadOnly(sqlText string) (string, error) {
	normalized := strings.TrimSpace(sqlText)
	normalized = strings.TrimSuffix(normalized, ";")
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return "", fmt.Errorf("READ-ONLY VIOLATION: Empty query")
	}

	checked := strings.ToUpper(normalized)
	checked = lineCommentRe.ReplaceAllString(checked, "")
	checked = blockCommentRe.ReplaceAllString(checked, "")

	if strings.Contains(checked, ";") {
		return "", fmt.Errorf("READ-ONLY VIOLATION: Multiple statements not allowed")
	}

	if kw := forbiddenKeywordRe.FindString(checked); kw != "" {
		return "", fmt.Errorf("READ-ONLY VIOLATION: Query contains forbidden keyword '%s'", kw)
	}

	if !leadingKeywordRe.MatchString(checked) {
		return "", fmt.Errorf("READ-ONLY VIOLATION: Only SELECT queries are allowed")
	}

	return normalized, nil
}
