package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRows() []ModuleRow {
	return []ModuleRow{
		{Project: "app", Name: "Main", Notation: "asn1", FanOut: 2, Depth: 1, UpToDate: true},
		{Project: "app", Name: "Util", Notation: "asn1", FanIn: 1, UpToDate: true},
		{Project: "base", Name: "Base", Notation: "ttcn", FanIn: 1, Erroneous: true},
	}
}

func TestParseCQL(t *testing.T) {
	query, err := ParseCQL(`SELECT modules WHERE fan_in > 0 AND name CONTAINS "ut"`)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if query.Target != "modules" {
		t.Fatalf("expected target modules, got %q", query.Target)
	}
	if len(query.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(query.Conditions))
	}
}

func TestParseCQLInvalid(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"DELETE FROM modules", "expected SELECT modules"},
		{"SELECT modules WHERE size > 2", `unknown field "size"`},
		{`SELECT modules WHERE name > 2`, "is not numeric"},
		{`SELECT modules WHERE depth = "x"`, "is numeric"},
		{"SELECT modules WHERE fan_in ~ 2", "invalid condition"},
	}
	for _, tt := range tests {
		_, err := ParseCQL(tt.raw)
		require.Error(t, err, tt.raw)
		assert.Contains(t, err.Error(), tt.want)
	}
}

func TestExecute(t *testing.T) {
	rows, err := Execute(`SELECT modules WHERE fan_in >= 1`, seedRows(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Util", rows[0].Name)
	assert.Equal(t, "Base", rows[1].Name)

	rows, err = Execute(`SELECT modules WHERE notation = "ASN1" AND up_to_date = 1`, seedRows(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Main", rows[0].Name)

	rows, err = Execute(`SELECT modules WHERE erroneous != 0 AND project != 'app'`, seedRows(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Base", rows[0].Name)

	rows, err = Execute(`select modules`, seedRows(), 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
