package claim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	grade := Claim{Kind: KindGradeThreshold, Comparator: GreaterThan, Threshold: 6.0}
	solved := Claim{Kind: KindActivityCountThreshold, Comparator: GreaterOrEqual, Threshold: 5}

	tests := []struct {
		name  string
		fact  Fact
		claim Claim
		want  bool
	}{
		{name: "grade above threshold", fact: Fact{Value: 6.5}, claim: grade, want: true},
		{name: "grade below threshold", fact: Fact{Value: 5.9}, claim: grade, want: false},
		{name: "grade equal is not greater", fact: Fact{Value: 6.0}, claim: grade, want: false},
		{name: "count equal meets gte", fact: Fact{Value: 5}, claim: solved, want: true},
		{name: "count below", fact: Fact{Value: 4}, claim: solved, want: false},
		{name: "sub-precision excess is not greater", fact: Fact{Value: 6.004}, claim: grade, want: false},
		{name: "rounds up into greater", fact: Fact{Value: 6.006}, claim: grade, want: true},
		{name: "unknown comparator never passes", fact: Fact{Value: 100}, claim: Claim{Comparator: "lt", Threshold: 1}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := Evaluate(tt.fact, tt.claim)
			second := Evaluate(tt.fact, tt.claim)
			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, second)
		})
	}
}

func TestParseComparator(t *testing.T) {
	for in, want := range map[string]Comparator{
		"gt":               GreaterThan,
		">":                GreaterThan,
		"greater-than":     GreaterThan,
		" GTE ":            GreaterOrEqual,
		">=":               GreaterOrEqual,
		"greater-or-equal": GreaterOrEqual,
	} {
		got, err := ParseComparator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseComparator("<")
	assert.Error(t, err)
}

func TestClaimValidate(t *testing.T) {
	assert.NoError(t, Claim{Kind: KindGradeThreshold, Comparator: GreaterThan}.Validate())
	assert.Error(t, Claim{Kind: "height", Comparator: GreaterThan}.Validate())
	assert.Error(t, Claim{Kind: KindGradeThreshold, Comparator: "eq"}.Validate())
	assert.Error(t, Claim{Kind: KindGradeThreshold, Comparator: GreaterThan, Threshold: -1}.Validate())
}

func TestNotMetMessage(t *testing.T) {
	msg := NotMetMessage(Fact{Value: 3}, Claim{Kind: KindActivityCountThreshold, Comparator: GreaterOrEqual, Threshold: 5})
	assert.Equal(t, "Threshold not met: only 3 solved (need >= 5)", msg)

	msg = NotMetMessage(Fact{Value: 5.9}, Claim{Kind: KindGradeThreshold, Comparator: GreaterThan, Threshold: 6})
	assert.Equal(t, "Threshold not met: 5.9 is not > 6", msg)
}
