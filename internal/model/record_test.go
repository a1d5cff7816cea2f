package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCourseState(t *testing.T) {
	cases := []struct {
		raw   string
		want  CourseState
		valid bool
	}{
		{"Enrol", CourseStateEnrol, true},
		{"Suspend", CourseStateSuspend, true},
		{"enrol", CourseStateEnrol, true},
		{"SUSPEND", CourseStateSuspend, true},
		{"  Enrol  ", CourseStateEnrol, true},
		{"Enroll", "", false},
		{"Drop", "", false},
		{"Completed", "", false},
		{"", "", false},
		{"   ", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseCourseState(tc.raw)
		assert.Equal(t, tc.valid, ok, "ParseCourseState(%q) ok", tc.raw)
		assert.Equal(t, tc.want, got, "ParseCourseState(%q) state", tc.raw)
	}
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Pat Meyer", IntakeRecord{FirstName: "Pat", LastName: "Meyer"}.FullName())
	assert.Equal(t, "Meyer", IntakeRecord{LastName: "Meyer"}.FullName())
	assert.Equal(t, "Pat", IntakeRecord{FirstName: "Pat"}.FullName())
	assert.Equal(t, "", IntakeRecord{}.FullName())
}
