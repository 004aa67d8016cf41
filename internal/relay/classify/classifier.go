// Package classify labels a completed reply as a genuine answer or one of the
// bot's deflections.
package classify

import (
	"strings"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// DefaultFormatMarkers is the upstream's "use the correct format" reply.
var DefaultFormatMarkers = []string{"usa el formato correcto"}

// DefaultRateLimitMarkers match the bots' anti-spam deflections.
var DefaultRateLimitMarkers = []string{"anti-spam", "antispam", "anti spam"}

// Classifier assigns exactly one verdict to a non-empty message list.
//
// Precedence: format_error > not_found > rate_limited > ok. Format errors and
// not-found are authoritative answers and end the query; rate limiting is
// actor-specific and triggers failover.
type Classifier struct {
	formatMarkers    []string
	rateLimitMarkers map[domain.ActorID][]string
	defaultRateLimit []string
}

// New creates a classifier. Markers are matched case-insensitively.
func New(formatMarkers []string) *Classifier {
	if len(formatMarkers) == 0 {
		formatMarkers = DefaultFormatMarkers
	}
	return &Classifier{
		formatMarkers:    lowerAll(formatMarkers),
		rateLimitMarkers: make(map[domain.ActorID][]string),
		defaultRateLimit: lowerAll(DefaultRateLimitMarkers),
	}
}

// SetRateLimitMarkers configures the anti-spam markers of one actor.
// Not safe to call concurrently with Classify; configure before use.
func (c *Classifier) SetRateLimitMarkers(actor domain.ActorID, markers []string) {
	c.rateLimitMarkers[actor] = lowerAll(markers)
}

// Classify labels the messages collected from actor.
func (c *Classifier) Classify(actor domain.ActorID, msgs []domain.ParsedMessage) domain.ClassifiedOutcome {
	out := domain.ClassifiedOutcome{Verdict: domain.VerdictOK, Messages: msgs}

	switch {
	case c.any(msgs, c.isFormatError):
		out.Verdict = domain.VerdictFormatError
	case c.any(msgs, func(m domain.ParsedMessage) bool { return m.NotFound }):
		out.Verdict = domain.VerdictNotFound
	case c.any(msgs, func(m domain.ParsedMessage) bool { return c.isRateLimited(actor, m) }):
		out.Verdict = domain.VerdictRateLimited
	}
	return out
}

// IsControlReply reports whether a single message is a deflection rather than
// data. Collectors accept these even when they carry no correlation key.
func (c *Classifier) IsControlReply(actor domain.ActorID, m domain.ParsedMessage) bool {
	return c.isFormatError(m) || m.NotFound || c.isRateLimited(actor, m)
}

func (c *Classifier) isFormatError(m domain.ParsedMessage) bool {
	return containsAny(m.Text, c.formatMarkers) || containsAny(m.RawText, c.formatMarkers)
}

func (c *Classifier) isRateLimited(actor domain.ActorID, m domain.ParsedMessage) bool {
	markers, ok := c.rateLimitMarkers[actor]
	if !ok {
		markers = c.defaultRateLimit
	}
	return containsAny(m.RawText, markers)
}

func (c *Classifier) any(msgs []domain.ParsedMessage, pred func(domain.ParsedMessage) bool) bool {
	for _, m := range msgs {
		if pred(m) {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
