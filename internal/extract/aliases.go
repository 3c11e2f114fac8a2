package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Aliases lists the exact key spellings tried, in order, for one logical field.
type Aliases []string

// Alias table for the dispatch API. New spellings go here and nowhere else.
var (
	RideIDKeys = Keys{"solicitacaoid", "solicitacao_id", "idsolicitacao"}
	FareKeys   = Keys{"valorfinal", "valor_final", "valorcorrida", "valortotal", "valor"}

	StageEnvelope     = Aliases{"EtapaSolicitacao", "etapaSolicitacao"}
	DriverName        = Aliases{"NomePrestador", "nomePrestador"}
	Vehicle           = Aliases{"Veiculo", "veiculo"}
	Plate             = Aliases{"Placa", "placa"}
	StageLabel        = Aliases{"Etapa", "etapa"}
	StageStatus       = Aliases{"StatusSolicitacao", "statusSolicitacao"}
	StatusDescription = Aliases{"StatusSolicitacaoDesc", "statusSolicitacaoDesc"}
)

// Value returns the first non-null value stored under one of the aliases of
// an object node.
func (a Aliases) Value(node any) (any, bool) {
	for _, key := range a {
		if v, ok := lookup(node, key); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first alias whose value renders to a non-empty string.
func (a Aliases) String(node any) string {
	for _, key := range a {
		v, ok := lookup(node, key)
		if !ok {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

// Unwrap returns the value under the first matching envelope alias, or node
// itself when none is present.
func Unwrap(node any, envelope Aliases) any {
	if inner, ok := envelope.Value(node); ok {
		return inner
	}
	return node
}

func lookup(node any, key string) (any, bool) {
	switch n := node.(type) {
	case *Object:
		return n.Get(key)
	case map[string]any:
		v, ok := n[key]
		return v, ok
	}
	return nil, false
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "true"
		}
	}
	return ""
}
