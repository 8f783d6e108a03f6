package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// parser accepts 5-field and 6-field (with seconds) expressions and
// descriptors such as "@daily" or "@every 1h".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule normalizes a campaign schedule to a cron expression.
//
// Supported forms:
//   - cron: "0 18 * * 1-5", "@daily", "@every 2h"
//   - time of day: "18:00" (every day at 18:00)
//   - "cron:" prefix forces cron parsing
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
	} else if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return "", fmt.Errorf("invalid time of day %q", raw)
		}
		s = fmt.Sprintf("%d %d * * *", mm, hh)
	}
	if _, err := parser.Parse(s); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return s, nil
}
