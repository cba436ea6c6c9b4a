package enrollment_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/edemy/core/enrollment"
)

func TestUnion(t *testing.T) {
	tests := []struct {
		name     string
		enrolled []string
		paid     []string
		exp      []string
	}{
		{name: "both empty", exp: []string{}},
		{name: "only enrollments", enrolled: []string{"a", "b"}, exp: []string{"a", "b"}},
		{name: "only purchases", paid: []string{"c"}, exp: []string{"c"}},
		{name: "overlap keeps first seen", enrolled: []string{"a", "b"}, paid: []string{"b", "c", "a"}, exp: []string{"a", "b", "c"}},
		{name: "duplicates within a list", enrolled: []string{"a", "a"}, paid: []string{"a"}, exp: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := enrollment.Union(tt.enrolled, tt.paid)
			if diff := cmp.Diff(tt.exp, got); diff != "" {
				t.Errorf("union mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
