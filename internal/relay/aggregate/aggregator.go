// Package aggregate merges the messages of one accepted session into a single result.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// BodySeparator joins the cleaned text of consecutive messages.
const BodySeparator = "\n---\n"

// Photo sub-types the bots tag attachments with.
var mediaTypeKeys = map[string]string{
	"rostro":  "ROSTRO",
	"huella":  "HUELLA",
	"firma":   "FIRMA",
	"adverso": "ADVERSO",
	"reverso": "REVERSO",
}

// Input is one accepted message together with the media stored for it.
type Input struct {
	Message domain.ParsedMessage
	Media   []domain.MediaRef
}

// Aggregator builds AggregatedResult values.
type Aggregator struct {
	promoted []string
}

// New creates an aggregator that lifts the given fields to the top level.
func New(promotedFields []string) *Aggregator {
	return &Aggregator{promoted: promotedFields}
}

// Aggregate merges inputs in arrival order.
//
// Fields are first-write-wins: later footers and boilerplate never clobber the
// first authoritative value.
func (a *Aggregator) Aggregate(actor domain.ActorID, inputs []Input) *domain.AggregatedResult {
	res := &domain.AggregatedResult{
		Status:       string(domain.VerdictOK),
		Fields:       make(map[string]string),
		MediaByType:  make(map[string]string),
		SourceActor:  actor,
		MessageCount: len(inputs),
	}

	bodies := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if in.Message.Text != "" {
			bodies = append(bodies, in.Message.Text)
		}
		for k, v := range in.Message.Fields {
			if _, ok := res.Fields[k]; !ok {
				res.Fields[k] = v
			}
		}
		for _, m := range in.Media {
			res.Media = append(res.Media, m)
			res.MediaByType[mediaKey(res.MediaByType, m.Type)] = m.URL
		}
	}
	res.Body = strings.Join(bodies, BodySeparator)

	a.promote(res)
	return res
}

// mediaKey returns the key for a media type, suffixing _1, _2... for extras.
func mediaKey(existing map[string]string, mediaType string) string {
	base, ok := mediaTypeKeys[strings.ToLower(mediaType)]
	if !ok {
		base = strings.ToUpper(mediaType)
	}
	if base == "" {
		base = "FILE"
	}
	if _, taken := existing[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", base, i)
		if _, taken := existing[key]; !taken {
			return key
		}
	}
}

func (a *Aggregator) promote(res *domain.AggregatedResult) {
	for _, f := range a.promoted {
		v, ok := res.Fields[f]
		if !ok {
			continue
		}
		delete(res.Fields, f)

		switch f {
		case "dni":
			res.DNI = v
		case "ruc":
			res.RUC = v
		default:
			if res.Identifiers == nil {
				res.Identifiers = make(map[string]string)
			}
			res.Identifiers[f] = v
		}
	}
}
