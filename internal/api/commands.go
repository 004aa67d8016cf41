package api

import (
	"fmt"
	"net/url"
	"strings"
)

// CommandError is a request that cannot be turned into a bot command.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string { return e.Message }

var commandAliases = map[string]string{
	"sunat": "sun",
}

// Commands whose argument must be an 8-digit DNI.
var dniCommands = set(
	"dni", "dnif", "dnidb", "dnifdb", "c4", "dnivaz", "dnivam", "dnivel", "dniveln",
	"fa", "fadb", "fb", "fbdb", "cnv", "cdef", "antpen", "antpol", "antjud",
	"actancc", "actamcc", "actadcc", "tra", "sue", "cla", "sune", "cun", "colp",
	"mine", "afp", "antpenv", "dend", "meta", "fis", "det", "rqh", "agv", "agvp",
	"fam", "fam2", "migrapdf", "con", "exd", "dir",
)

// Commands that need a free-form argument, with the query parameters tried first.
var queryCommands = map[string][]string{
	"tel":    nil,
	"telp":   {"dni_o_telefono", "dni_o_correo", "query"},
	"cor":    {"dni_o_telefono", "dni_o_correo", "query"},
	"nmv":    nil,
	"tremp":  nil,
	"fisdet": {"caso", "distritojudicial", "query"},
	"dence":  {"carnet_extranjeria"},
	"denpas": {"pasaporte"},
	"denci":  {"cedula_identidad"},
	"denp":   {"placa"},
	"denar":  {"serie_armamento"},
	"dencl":  {"clave_denuncia"},
	"cedula": {"cedula"},
}

// Commands whose argument is optional.
var optionalCommands = set("osiptel", "claro", "entel", "pro", "sen", "sbs", "pasaporte", "seeker", "bdir")

// BuildCommand turns a route name and its query parameters into the literal
// bot command, validating the argument the way the bots expect it.
func BuildCommand(name string, args url.Values) (string, error) {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	if alias, ok := commandAliases[name]; ok {
		name = alias
	}

	var param string
	switch {
	case name == "sun":
		param = first(args, "dni_o_ruc", "query")
		if !isDigits(param) || (len(param) != 8 && len(param) != 11) {
			return "", &CommandError{fmt.Sprintf("parameter 'dni_o_ruc' or 'query' must be a DNI (8 digits) or RUC (11 digits) for /%s", name)}
		}

	case dniCommands[name]:
		param = args.Get("dni")
		if !isDigits(param) || len(param) != 8 {
			return "", &CommandError{fmt.Sprintf("parameter 'dni' must be an 8-digit number for /%s", name)}
		}

	case hasKey(queryCommands, name):
		param = first(args, queryCommands[name]...)
		if param == "" && name == "fisdet" {
			if dni, det := args.Get("dni"), args.Get("detalle"); dni != "" && det != "" {
				param = dni + "|" + det
			}
		}
		if param == "" {
			param = first(args, "dni", "query")
		}
		if param == "" {
			return "", &CommandError{fmt.Sprintf("a query parameter is required for /%s", name)}
		}

	case optionalCommands[name]:
		keys := []string{"dni", "query"}
		if name == "pasaporte" {
			keys = append(keys, "pasaporte")
		}
		param = first(args, keys...)

	default:
		return "", &CommandError{fmt.Sprintf("unknown command /%s", name)}
	}

	return strings.TrimSpace("/" + name + " " + param), nil
}

// NameSearchCommand builds the /nm command from given names and both surnames.
func NameSearchCommand(names, paternal, maternal string) (string, error) {
	names, paternal, maternal = strings.TrimSpace(names), strings.TrimSpace(paternal), strings.TrimSpace(maternal)
	if paternal == "" || maternal == "" {
		return "", &CommandError{"parameters 'apepaterno' and 'apematerno' are required"}
	}
	return fmt.Sprintf("/nm %s|%s|%s",
		strings.ReplaceAll(names, " ", ","),
		strings.ReplaceAll(paternal, " ", "+"),
		strings.ReplaceAll(maternal, " ", "+"),
	), nil
}

func first(args url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(args.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasKey(m map[string][]string, k string) bool {
	_, ok := m[k]
	return ok
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}
