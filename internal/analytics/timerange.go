package analytics

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
)

const (
	dateLayout  = "2006-01-02"
	boundLayout = "2006-01-02T15:04:05.000Z07:00"
)

// TimeRange is the closed window [Start, End] on event timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimeRange accepts RFC 3339 timestamps or bare dates. A bare end date
// covers that whole day.
func ParseTimeRange(start, end string) (TimeRange, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return TimeRange{}, apperrors.InvalidInput("start and end are required")
	}
	s, err := parseBound(start, false)
	if err != nil {
		return TimeRange{}, apperrors.InvalidInput("start %q is not an RFC 3339 time or date", start)
	}
	e, err := parseBound(end, true)
	if err != nil {
		return TimeRange{}, apperrors.InvalidInput("end %q is not an RFC 3339 time or date", end)
	}
	tr := TimeRange{Start: s, End: e}
	return tr, tr.Validate()
}

func parseBound(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}

// Validate rejects empty or reversed windows.
func (tr TimeRange) Validate() error {
	if tr.Start.IsZero() || tr.End.IsZero() {
		return apperrors.InvalidInput("start and end are required")
	}
	if tr.Start.After(tr.End) {
		return apperrors.InvalidInput("start %s is after end %s",
			tr.Start.Format(time.RFC3339), tr.End.Format(time.RFC3339))
	}
	return nil
}

// filter is the inclusive range predicate every aggregation shares.
func (tr TimeRange) filter() map[string]any {
	return map[string]any{
		"range": map[string]any{
			"timestamp": map[string]any{
				"gte":    tr.Start.UTC().Format(boundLayout),
				"lte":    tr.End.UTC().Format(boundLayout),
				"format": "strict_date_optional_time",
			},
		},
	}
}

var intervalPattern = regexp.MustCompile(`^([1-9][0-9]*)(ms|s|m|h|d)$`)

// ParseInterval parses a fixed histogram width such as "30m", "1h" or "1d".
func ParseInterval(s string) (time.Duration, error) {
	m := intervalPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, apperrors.InvalidInput("interval %q must look like 30m, 1h or 1d", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, apperrors.InvalidInput("interval %q is too large", s)
	}
	unit := map[string]time.Duration{
		"ms": time.Millisecond,
		"s":  time.Second,
		"m":  time.Minute,
		"h":  time.Hour,
		"d":  24 * time.Hour,
	}[m[2]]
	if n > int64(1<<62)/int64(unit) {
		return 0, apperrors.InvalidInput("interval %q is too large", s)
	}
	return time.Duration(n) * unit, nil
}

// bucketCount is the number of fixed_interval buckets a histogram over tr
// returns. Buckets are aligned to the Unix epoch, not to tr.Start.
func bucketCount(tr TimeRange, interval time.Duration) int64 {
	step := interval.Milliseconds()
	return floorDiv(tr.End.UnixMilli(), step) - floorDiv(tr.Start.UnixMilli(), step) + 1
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
