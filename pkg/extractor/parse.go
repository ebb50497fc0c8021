package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	solvedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*/\s*\d+\s*Solved`),
		regexp.MustCompile(`(?i)Solved\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*Solved`),
	}
	categoryPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"easy", regexp.MustCompile(`(?i)Easy\s*(\d+)`)},
		{"medium", regexp.MustCompile(`(?i)Medium\s*(\d+)`)},
		{"hard", regexp.MustCompile(`(?i)Hard\s*(\d+)`)},
	}
	profileMarkers = []string{"Solved", "Rank", "submissions"}
)

const minProfileTextLen = 500

// ParseDecimal pulls the first capture group of pattern out of text and
// parses it as a plain decimal. A missing or malformed token is an error,
// never zero.
func ParseDecimal(text string, pattern *regexp.Regexp) (float64, error) {
	m := pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, fmt.Errorf("pattern %q not found", pattern.String())
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed value %q: %w", m[1], err)
	}
	return v, nil
}

// ActivityStats is the aggregate count of a public profile and its
// per-difficulty breakdown.
type ActivityStats struct {
	Total     int
	Breakdown map[string]int
}

// ParseActivity reads the solved count from profile text. When no aggregate
// pattern matches (or it reads zero) the total is reconciled from the
// category sums.
func ParseActivity(text string) (ActivityStats, error) {
	total, found := 0, false
	for _, re := range solvedPatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return ActivityStats{}, fmt.Errorf("malformed solved count %q: %w", m[1], err)
			}
			total, found = n, true
			break
		}
	}

	breakdown := make(map[string]int, len(categoryPatterns))
	anyCategory := false
	sum := 0
	for _, cat := range categoryPatterns {
		m := cat.re.FindStringSubmatch(text)
		if len(m) != 2 {
			breakdown[cat.name] = 0
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return ActivityStats{}, fmt.Errorf("malformed %s count %q: %w", cat.name, m[1], err)
		}
		breakdown[cat.name] = n
		sum += n
		anyCategory = true
	}

	if (!found || total == 0) && anyCategory {
		total, found = sum, true
	}
	if !found {
		return ActivityStats{}, fmt.Errorf("solved count not found")
	}
	return ActivityStats{Total: total, Breakdown: breakdown}, nil
}

// IsInterstitial reports whether the page looks like an anti-automation
// challenge rather than the requested content.
func IsInterstitial(title, url string) bool {
	return strings.Contains(strings.ToLower(title), "just a moment") || strings.Contains(url, "challenge")
}

// ProfileMissing decides whether a profile page is a not-found page, or so
// empty that it was most likely blocked.
func ProfileMissing(heading, text string) bool {
	if strings.Contains(heading, "Page Not Found") {
		return true
	}
	for _, marker := range profileMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return len(text) < minProfileTextLen
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
