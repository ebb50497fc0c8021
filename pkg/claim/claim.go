package claim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a claim measures.
type Kind string

const (
	KindGradeThreshold         Kind = "grade-threshold"
	KindActivityCountThreshold Kind = "activity-count-threshold"
)

// Comparator is the operator applied between a fact and a threshold.
type Comparator string

const (
	GreaterThan    Comparator = "greater-than"
	GreaterOrEqual Comparator = "greater-or-equal"
)

// Claim is a threshold predicate over a single extracted value.
// Claims are defined per portal integration, never by the user.
type Claim struct {
	Kind       Kind       `json:"kind"`
	Comparator Comparator `json:"comparator"`
	Threshold  float64    `json:"threshold"`
}

// Fact is the numeric value scraped from a portal, plus an optional
// per-category breakdown for activity claims.
type Fact struct {
	Value     float64        `json:"value"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

// Scale is the fixed-point precision claims are evaluated at. Provers encode
// values with the same scale, so both sides always agree.
const Scale = 100

// Scaled rounds v to Scale and returns it as an integer.
func Scaled(v float64) int64 {
	return int64(math.Round(v * Scale))
}

// Evaluate applies the claim's comparator to the fact value, both taken at
// Scale precision. A false result is a normal outcome.
func Evaluate(f Fact, c Claim) bool {
	if math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
		return false
	}
	value, threshold := Scaled(f.Value), Scaled(c.Threshold)
	switch c.Comparator {
	case GreaterThan:
		return value > threshold
	case GreaterOrEqual:
		return value >= threshold
	default:
		return false
	}
}

// ParseComparator accepts the canonical names and the usual symbols.
func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(GreaterThan), "gt", ">":
		return GreaterThan, nil
	case string(GreaterOrEqual), "gte", "ge", ">=":
		return GreaterOrEqual, nil
	default:
		return "", fmt.Errorf("unknown comparator %q", s)
	}
}

// Symbol returns the operator as it is shown to users.
func (c Comparator) Symbol() string {
	switch c {
	case GreaterThan:
		return ">"
	case GreaterOrEqual:
		return ">="
	default:
		return "?"
	}
}

func (c Claim) String() string {
	return fmt.Sprintf("%s %s %s", c.Kind, c.Comparator.Symbol(), strconv.FormatFloat(c.Threshold, 'f', -1, 64))
}

// Validate reports whether the claim definition is usable.
func (c Claim) Validate() error {
	switch c.Kind {
	case KindGradeThreshold, KindActivityCountThreshold:
	default:
		return fmt.Errorf("unknown claim kind %q", c.Kind)
	}
	switch c.Comparator {
	case GreaterThan, GreaterOrEqual:
	default:
		return fmt.Errorf("unknown comparator %q", c.Comparator)
	}
	if c.Threshold < 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("threshold %v out of range", c.Threshold)
	}
	return nil
}

// NotMetMessage is the human-readable reason shown when evaluation fails.
func NotMetMessage(f Fact, c Claim) string {
	value := strconv.FormatFloat(f.Value, 'f', -1, 64)
	threshold := strconv.FormatFloat(c.Threshold, 'f', -1, 64)
	switch c.Kind {
	case KindActivityCountThreshold:
		return fmt.Sprintf("Threshold not met: only %s solved (need %s %s)", value, c.Comparator.Symbol(), threshold)
	default:
		return fmt.Sprintf("Threshold not met: %s is not %s %s", value, c.Comparator.Symbol(), threshold)
	}
}
