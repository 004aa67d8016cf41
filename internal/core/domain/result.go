package domain

// Verdict is the classification of a completed message set.
type Verdict string

const (
	VerdictOK          Verdict = "ok"
	VerdictNotFound    Verdict = "not_found"
	VerdictFormatError Verdict = "format_error"
	VerdictRateLimited Verdict = "rate_limited"
)

// ClassifiedOutcome is derived from a closed session; it is never stored.
type ClassifiedOutcome struct {
	Verdict  Verdict
	Messages []ParsedMessage
}

// MediaRef points at a stored attachment.
type MediaRef struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	TextContext string `json:"text_context,omitempty"`
}

// AggregatedResult is the final answer of a successful query.
type AggregatedResult struct {
	Status       string            `json:"status"`
	Body         string            `json:"message"`
	DNI          string            `json:"dni,omitempty"`
	RUC          string            `json:"ruc,omitempty"`
	Identifiers  map[string]string `json:"identifiers,omitempty"`
	Fields       map[string]string `json:"fields"`
	Media        []MediaRef        `json:"media,omitempty"`
	MediaByType  map[string]string `json:"urls,omitempty"`
	SourceActor  ActorID           `json:"bot_used"`
	MessageCount int               `json:"message_count"`
	FromCache    bool              `json:"from_cache"`
}

// MediaURLs returns the URLs of all media in arrival order.
func (r *AggregatedResult) MediaURLs() []string {
	urls := make([]string, 0, len(r.Media))
	for _, m := range r.Media {
		urls = append(urls, m.URL)
	}
	return urls
}
