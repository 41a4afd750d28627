package pgvector

import (
	"strings"
	"testing"
)

func TestBuildQueryWithoutFilters(t *testing.T) {
	sql, args := buildQuery("remediation_cases", []float32{0.1, 0.2}, nil, 10)
	if !strings.Contains(sql, "WHERE corpus = $2\n") {
		t.Fatalf("unexpected where clause:\n%s", sql)
	}
	if !strings.Contains(sql, "LIMIT $3") {
		t.Fatalf("limit placeholder: got\n%s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("args: want=3 got=%d", len(args))
	}
	if args[1] != "remediation_cases" || args[2] != 10 {
		t.Fatalf("args mismatch: %v", args[1:])
	}
}

func TestBuildQueryFiltersAreOrderedAndSkipEmpty(t *testing.T) {
	sql, args := buildQuery("curriculum_content", []float32{1}, map[string]string{
		"subject":     "mathematics",
		"grade_level": "grade_8",
		"unused":      " ",
	}, 15)
	if !strings.Contains(sql, "corpus = $2 AND metadata->>$3 = $4 AND metadata->>$5 = $6") {
		t.Fatalf("unexpected where clause:\n%s", sql)
	}
	if !strings.Contains(sql, "LIMIT $7") {
		t.Fatalf("limit placeholder: got\n%s", sql)
	}
	want := []any{"grade_level", "grade_8", "subject", "mathematics", 15}
	for i, w := range want {
		if args[i+2] != w {
			t.Fatalf("arg %d: want=%v got=%v", i+2, w, args[i+2])
		}
	}
}
