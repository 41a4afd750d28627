package prerequisites

import (
	"strconv"
	"strings"
)

const defaultGrade = 10

// gradeNumber parses "grade_N". Anything else is treated as grade 10.
func gradeNumber(grade string) int {
	s := strings.ToLower(strings.TrimSpace(grade))
	s = strings.TrimPrefix(s, "grade_")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return defaultGrade
	}
	return n
}

func gradeLabel(n int) string {
	return "grade_" + strconv.Itoa(n)
}

// gradeWindow lists the grade levels below current, nearest first, at most depth of them.
func gradeWindow(current string, depth int) []string {
	n := gradeNumber(current)
	out := make([]string, 0, depth)
	for i := 1; i <= depth; i++ {
		level := n - i
		if level < 1 {
			break
		}
		out = append(out, gradeLabel(level))
	}
	return out
}

// GradeBelow returns the grade label one level under grade, floored at grade_1.
func GradeBelow(grade string) string {
	n := gradeNumber(grade) - 1
	if n < 1 {
		n = 1
	}
	return gradeLabel(n)
}

// GradeRank orders grade labels; higher is a later grade.
func GradeRank(grade string) int {
	return gradeNumber(grade)
}
