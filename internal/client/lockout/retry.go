package lockout

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/podesk/internal/client/client"
)

var tryAgainRe = regexp.MustCompile(`(?i)try again in\s+(\d+)s`)

// ParseRetryAfter reads a retry-after value given as a number, a numeric
// string or a message like "Try again in 30s.". Results are floored and
// clamped at 0; anything unrecognised yields 0.
func ParseRetryAfter(v any) int {
	switch value := v.(type) {
	case nil:
		return 0
	case int:
		return clamp(float64(value))
	case int64:
		return clamp(float64(value))
	case float64:
		return clamp(value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0
		}
		return clamp(f)
	case string:
		s := strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return clamp(f)
		}
		return RetryAfterFromMessage(s)
	default:
		return 0
	}
}

// RetryAfterFromMessage extracts N from "... try again in Ns ...".
func RetryAfterFromMessage(msg string) int {
	m := tryAgainRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// RetryAfterFromError prefers the structured retry_after field of an API
// error and falls back to its message.
func RetryAfterFromError(err error) int {
	apiErr, ok := client.AsAPIError(err)
	if !ok {
		return RetryAfterFromMessage(errMessage(err))
	}
	if n := ParseRetryAfter(apiErr.RetryAfter); n > 0 {
		return n
	}
	return RetryAfterFromMessage(apiErr.Message)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func clamp(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(f))
}
