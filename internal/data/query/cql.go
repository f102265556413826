// Package query filters the analyzed modules with a small SELECT language:
//
//	SELECT modules WHERE fan_in >= 2 AND notation = "ttcn" AND name CONTAINS "Msg"
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	cqlSelectRE       = regexp.MustCompile(`(?i)^\s*SELECT\s+modules(?:\s+WHERE\s+(.+))?\s*$`)
	cqlAndSplitRE     = regexp.MustCompile(`(?i)\s+AND\s+`)
	cqlNumericCondRE  = regexp.MustCompile(`(?i)^\s*([a-z_]+)\s*(>=|<=|!=|=|>|<)\s*(-?[0-9]+)\s*$`)
	cqlContainsCondRE = regexp.MustCompile(`(?i)^\s*([a-z_]+)\s+CONTAINS\s+['"]([^'"]+)['"]\s*$`)
	cqlStringCondRE   = regexp.MustCompile(`(?i)^\s*([a-z_]+)\s*(=|!=)\s*['"]([^'"]+)['"]\s*$`)
)

// ModuleRow is one analyzed module with the fields a query can test.
type ModuleRow struct {
	Project     string `json:"project"`
	Name        string `json:"name"`
	Notation    string `json:"notation"`
	File        string `json:"file"`
	Assignments int    `json:"assignments"`
	FanIn       int    `json:"fan_in"`
	FanOut      int    `json:"fan_out"`
	Depth       int    `json:"depth"`
	UpToDate    bool   `json:"up_to_date"`
	Erroneous   bool   `json:"erroneous"`
	Skipped     bool   `json:"skipped"`
}

type CQLQuery struct {
	Target     string
	Conditions []CQLCondition
}

type CQLCondition struct {
	Field  string
	Op     string
	IntVal int
	StrVal string
	IsInt  bool
	IsStr  bool
}

func ParseCQL(raw string) (CQLQuery, error) {
	matches := cqlSelectRE.FindStringSubmatch(strings.TrimSpace(raw))
	if len(matches) == 0 {
		return CQLQuery{}, fmt.Errorf("invalid query: expected SELECT modules [WHERE ...]")
	}

	query := CQLQuery{Target: "modules"}
	where := strings.TrimSpace(matches[1])
	if where == "" {
		return query, nil
	}

	parts := cqlAndSplitRE.Split(where, -1)
	query.Conditions = make([]CQLCondition, 0, len(parts))
	for _, part := range parts {
		condition, err := parseCQLCondition(part)
		if err != nil {
			return CQLQuery{}, err
		}
		if err := condition.validate(); err != nil {
			return CQLQuery{}, err
		}
		query.Conditions = append(query.Conditions, condition)
	}
	return query, nil
}

func parseCQLCondition(raw string) (CQLCondition, error) {
	if match := cqlNumericCondRE.FindStringSubmatch(raw); len(match) == 4 {
		value, err := strconv.Atoi(strings.TrimSpace(match[3]))
		if err != nil {
			return CQLCondition{}, fmt.Errorf("invalid numeric value %q: %w", match[3], err)
		}
		return CQLCondition{
			Field:  strings.ToLower(strings.TrimSpace(match[1])),
			Op:     strings.TrimSpace(match[2]),
			IntVal: value,
			IsInt:  true,
		}, nil
	}

	if match := cqlContainsCondRE.FindStringSubmatch(raw); len(match) == 3 {
		return CQLCondition{
			Field:  strings.ToLower(strings.TrimSpace(match[1])),
			Op:     "contains",
			StrVal: strings.TrimSpace(match[2]),
			IsStr:  true,
		}, nil
	}

	if match := cqlStringCondRE.FindStringSubmatch(raw); len(match) == 4 {
		return CQLCondition{
			Field:  strings.ToLower(strings.TrimSpace(match[1])),
			Op:     strings.TrimSpace(match[2]),
			StrVal: strings.TrimSpace(match[3]),
			IsStr:  true,
		}, nil
	}

	return CQLCondition{}, fmt.Errorf("invalid condition %q", strings.TrimSpace(raw))
}

func (c CQLCondition) validate() error {
	_, isInt := intField(ModuleRow{}, c.Field)
	_, isStr := stringField(ModuleRow{}, c.Field)
	switch {
	case !isInt && !isStr:
		return fmt.Errorf("unknown field %q", c.Field)
	case c.IsInt && !isInt:
		return fmt.Errorf("field %q is not numeric", c.Field)
	case c.IsStr && !isStr:
		return fmt.Errorf("field %q is numeric", c.Field)
	}
	return nil
}

func intField(row ModuleRow, field string) (int, bool) {
	switch field {
	case "assignments":
		return row.Assignments, true
	case "fan_in":
		return row.FanIn, true
	case "fan_out":
		return row.FanOut, true
	case "depth":
		return row.Depth, true
	case "up_to_date":
		return boolInt(row.UpToDate), true
	case "erroneous":
		return boolInt(row.Erroneous), true
	case "skipped":
		return boolInt(row.Skipped), true
	}
	return 0, false
}

func stringField(row ModuleRow, field string) (string, bool) {
	switch field {
	case "project":
		return row.Project, true
	case "name":
		return row.Name, true
	case "notation":
		return row.Notation, true
	case "file":
		return row.File, true
	}
	return "", false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Match reports whether row satisfies every condition.
func (q CQLQuery) Match(row ModuleRow) bool {
	for _, c := range q.Conditions {
		if !c.match(row) {
			return false
		}
	}
	return true
}

func (c CQLCondition) match(row ModuleRow) bool {
	if c.IsInt {
		v, _ := intField(row, c.Field)
		switch c.Op {
		case ">=":
			return v >= c.IntVal
		case "<=":
			return v <= c.IntVal
		case ">":
			return v > c.IntVal
		case "<":
			return v < c.IntVal
		case "!=":
			return v != c.IntVal
		default:
			return v == c.IntVal
		}
	}

	v, _ := stringField(row, c.Field)
	switch c.Op {
	case "contains":
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.StrVal))
	case "!=":
		return !strings.EqualFold(v, c.StrVal)
	default:
		return strings.EqualFold(v, c.StrVal)
	}
}

// Execute parses raw and returns the matching rows ordered by project and
// name. A positive limit caps the result.
func Execute(raw string, rows []ModuleRow, limit int) ([]ModuleRow, error) {
	q, err := ParseCQL(raw)
	if err != nil {
		return nil, err
	}

	out := make([]ModuleRow, 0, len(rows))
	for _, row := range rows {
		if q.Match(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
