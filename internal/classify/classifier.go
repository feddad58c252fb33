// Package classify derives the operational state of a target from the tail of
// its service log. The rules are ordered: reachability first, then the stopped
// phrase, then the known failure phrases in priority order. First match wins.
package classify

import (
	"regexp"
	"strings"

	"fleetops/internal/core/domain"
)

// DefaultOfflinePhrases are the log phrases that mark a stopped service.
var DefaultOfflinePhrases = []string{
	"stopped osm service",
}

// DefaultErrorPhrases are the known failure phrases, highest priority first.
// When several appear in the same log tail the first of this list wins.
var DefaultErrorPhrases = []string{
	"exception caught: stoi",
	"system error",
	"segmentation fault",
	"cannot open connection",
	"core dumped",
}

// versionPattern matches the service version as printed on startup,
// e.g. "7.1.12-4".
var versionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+-\d+)`)

// Classifier applies the phrase rules to a log tail.
type Classifier struct {
	offlinePhrases []string
	errorPhrases   []string
}

// New creates a classifier. Nil phrase lists fall back to the defaults.
func New(offlinePhrases, errorPhrases []string) *Classifier {
	if offlinePhrases == nil {
		offlinePhrases = DefaultOfflinePhrases
	}
	if errorPhrases == nil {
		errorPhrases = DefaultErrorPhrases
	}
	return &Classifier{
		offlinePhrases: offlinePhrases,
		errorPhrases:   errorPhrases,
	}
}

// Classify returns the state of a target given whether its log could be
// fetched and the fetched log tail.
//
// An unreachable target is offline no matter what a stale log says. A
// reachable target whose log contains a stop phrase is offline even when a
// failure phrase also appears: a stopped service cannot be in error.
func (c *Classifier) Classify(reachable bool, logTail string) domain.Status {
	if !reachable {
		return domain.Offline()
	}

	lower := strings.ToLower(logTail)

	for _, phrase := range c.offlinePhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return domain.Offline()
		}
	}

	for _, phrase := range c.errorPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return domain.ErrorStatus(phrase)
		}
	}

	return domain.Online()
}

// ExtractVersion pulls the service version out of a log tail. Extraction is
// opportunistic: a log without a version line is not an error.
func (c *Classifier) ExtractVersion(logTail string) (string, bool) {
	match := versionPattern.FindString(logTail)
	if match == "" {
		return "", false
	}
	return match, true
}
