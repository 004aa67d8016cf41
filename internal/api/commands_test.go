package api

import (
	"net/url"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		args    url.Values
		want    string
		wantErr bool
	}{
		{"dni", "dni", url.Values{"dni": {"12345678"}}, "/dni 12345678", false},
		{"dni leading slash", "/DNI", url.Values{"dni": {"12345678"}}, "/dni 12345678", false},
		{"dni wrong length", "dni", url.Values{"dni": {"1234567"}}, "", true},
		{"dni not digits", "fa", url.Values{"dni": {"1234567a"}}, "", true},
		{"sunat ruc", "sunat", url.Values{"query": {"20123456789"}}, "/sun 20123456789", false},
		{"sun bad length", "sun", url.Values{"dni_o_ruc": {"123456789"}}, "", true},
		{"query command specific param", "denp", url.Values{"placa": {"ABC123"}}, "/denp ABC123", false},
		{"query command fallback", "tel", url.Values{"query": {"999888777"}}, "/tel 999888777", false},
		{"query command missing", "cedula", url.Values{}, "", true},
		{"fisdet dni and detail", "fisdet", url.Values{"dni": {"12345678"}, "detalle": {"2"}}, "/fisdet 12345678|2", false},
		{"fisdet caso", "fisdet", url.Values{"caso": {"123-2024"}}, "/fisdet 123-2024", false},
		{"fisdet query beats dni and detail", "fisdet", url.Values{"query": {"456-2023"}, "dni": {"12345678"}, "detalle": {"2"}}, "/fisdet 456-2023", false},
		{"cor query beats dni", "cor", url.Values{"query": {"a@b.pe"}, "dni": {"12345678"}}, "/cor a@b.pe", false},
		{"fisdet dni only", "fisdet", url.Values{"dni": {"12345678"}}, "/fisdet 12345678", false},
		{"optional empty", "claro", url.Values{}, "/claro", false},
		{"optional pasaporte", "pasaporte", url.Values{"pasaporte": {"X1234"}}, "/pasaporte X1234", false},
		{"unknown", "zzz", url.Values{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildCommand(tt.cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BuildCommand = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNameSearchCommand(t *testing.T) {
	got, err := NameSearchCommand(" ANA MARIA ", "LOPEZ", "SAN MARTIN")
	if err != nil {
		t.Fatal(err)
	}
	if want := "/nm ANA,MARIA|LOPEZ|SAN+MARTIN"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, err := NameSearchCommand("ANA", "", "LOPEZ"); err == nil {
		t.Error("missing paternal surname should fail")
	}
}
