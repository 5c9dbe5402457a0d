package repository

import "strings"

// Scope restricts aggregate queries to a set of organizations, a single
// reviewer, or both.
type Scope struct {
	OrgIDs     []int64
	ReviewerID int64
}

func (s Scope) empty() bool {
	return len(s.OrgIDs) == 0 && s.ReviewerID == 0
}

// clause renders the scope as a WHERE fragment. Org ids are passed as a slice
// and must go through sqlx.In.
func (s Scope) clause(orgColumn, reviewerColumn string) (string, []interface{}) {
	var parts []string
	var args []interface{}
	if len(s.OrgIDs) > 0 {
		parts = append(parts, orgColumn+" IN (?)")
		args = append(args, s.OrgIDs)
	}
	if s.ReviewerID != 0 {
		parts = append(parts, reviewerColumn+" = ?")
		args = append(args, s.ReviewerID)
	}
	return strings.Join(parts, " AND "), args
}
