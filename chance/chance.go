// Package chance provides the random decisions behind every simulated fault.
package chance

import "math/rand/v2"

// FailureCodes are the statuses a simulated provider failure may carry.
var FailureCodes = []int{429, 500, 502, 503, 504}

var errorMessages = map[int]string{
	429: "Too Many Requests - Rate limit exceeded",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Temporarily Unavailable",
	504: "Gateway Timeout",
}

// Decide reports true with probability rate. A rate of 1 or more always
// triggers, 0 or less never does.
func Decide(rate float64) bool {
	return rand.Float64() < rate
}

// FailureCode picks one of FailureCodes with equal weight.
func FailureCode() int {
	return FailureCodes[rand.IntN(len(FailureCodes))]
}

// ErrorMessage returns the error text for a failure code.
func ErrorMessage(code int) string {
	if m, ok := errorMessages[code]; ok {
		return m
	}
	return "Unknown Error"
}
