package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type EndpointKind string

const (
	EndpointStandard   EndpointKind = "standard"
	EndpointNameSearch EndpointKind = "name_search"
)

// Name-search commands answer with long paginated listings and get a longer
// collection window.
var nameSearchCommands = map[string]bool{
	"nm":  true,
	"nmv": true,
}

// Document numbers: 8 digits for DNI, 11 for RUC.
var correlationPattern = regexp.MustCompile(`^/\w+\s+(\d{8}|\d{11})\b`)

// Query is a single lookup request. It is immutable once built.
type Query struct {
	ID             string
	Command        string
	CorrelationKey string
	Kind           EndpointKind
}

// NewQuery builds a Query from the literal command text, extracting the
// correlation key and endpoint kind.
func NewQuery(command string) Query {
	command = strings.TrimSpace(command)
	q := Query{
		ID:      uuid.New().String(),
		Command: command,
		Kind:    EndpointStandard,
	}

	if m := correlationPattern.FindStringSubmatch(command); m != nil {
		q.CorrelationKey = m[1]
	}
	if nameSearchCommands[q.CommandName()] {
		q.Kind = EndpointNameSearch
	}
	return q
}

// CommandName returns the command without the leading slash and arguments.
func (q Query) CommandName() string {
	name, _, _ := strings.Cut(strings.TrimPrefix(q.Command, "/"), " ")
	return strings.ToLower(name)
}
