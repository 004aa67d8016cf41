package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewQuery(t *testing.T) {
	tests := []struct {
		command string
		key     string
		kind    EndpointKind
		name    string
	}{
		{"/dni 12345678", "12345678", EndpointStandard, "dni"},
		{"/sun 20123456789", "20123456789", EndpointStandard, "sun"},
		{"/dni 1234567", "", EndpointStandard, "dni"},
		{"/dni 123456789", "", EndpointStandard, "dni"},
		{"/nm JUAN|PEREZ|LOPEZ", "", EndpointNameSearch, "nm"},
		{"  /NMV jose  ", "", EndpointNameSearch, "nmv"},
		{"/tel 987654321", "", EndpointStandard, "tel"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			q := NewQuery(tt.command)
			if q.CorrelationKey != tt.key {
				t.Errorf("key = %q, want %q", q.CorrelationKey, tt.key)
			}
			if q.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", q.Kind, tt.kind)
			}
			if q.CommandName() != tt.name {
				t.Errorf("name = %q, want %q", q.CommandName(), tt.name)
			}
			if q.ID == "" {
				t.Error("expected query ID")
			}
		})
	}
}

func TestParsedMessage_MatchesKey(t *testing.T) {
	msg := func(raw string, fields map[string]string) ParsedMessage {
		return ParsedMessage{
			IncomingMessage: IncomingMessage{RawText: raw},
			Normalized:      Normalized{Fields: fields},
		}
	}

	tests := []struct {
		name string
		msg  ParsedMessage
		key  string
		want bool
	}{
		{"no key accepts all", msg("anything", nil), "", true},
		{"matching dni", msg("DNI : 12345678", map[string]string{"dni": "12345678"}), "12345678", true},
		{"other dni", msg("DNI : 87654321", map[string]string{"dni": "87654321"}), "12345678", false},
		{"matching ruc", msg("RUC : 20123456789", map[string]string{"ruc": "20123456789"}), "20123456789", true},
		{"no identifier mentions key", msg("[⚠️] No se encontro información para 12345678", nil), "12345678", true},
		{"no identifier unrelated", msg("Foto de otra consulta", nil), "12345678", false},
		{"not found reply", ParsedMessage{Normalized: Normalized{NotFound: true}}, "12345678", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.MatchesKey(tt.key); got != tt.want {
				t.Errorf("MatchesKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewError(KindNoResponse, "actor silent", nil))

	if !errors.Is(err, ErrNoResponse) {
		t.Error("expected errors.Is to match ErrNoResponse")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("did not expect match with ErrNotFound")
	}
	if KindOf(err) != KindNoResponse {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindNoResponse)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for plain error")
	}
}
