package tests

import (
	"encoding/json"
	"testing"

	"ridewatch/internal/extract"
)

func TestFindID_MatchesAliasSpellings(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"pascal case number", `{"SolicitacaoID": 42}`},
		{"snake case string", `{"solicitacao_id": "42"}`},
		{"reversed float", `{"IdSolicitacao": 42.0}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := extract.FindID(mustDecode(t, tc.body), extract.RideIDKeys)
			if !ok || id != 42 {
				t.Errorf("expected 42, got %d (found=%v)", id, ok)
			}
		})
	}
}

func TestFindID_NotFound(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"empty array", `[]`},
		{"scalar", `"101"`},
		{"zero id", `{"SolicitacaoID": 0}`},
		{"negative id", `{"SolicitacaoID": -5}`},
		{"fractional id", `{"SolicitacaoID": 4.5}`},
		{"non numeric id", `{"SolicitacaoID": "abc"}`},
		{"unrelated keys", `{"ClienteID": 7, "data": {"id": 9}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if id, ok := extract.FindID(mustDecode(t, tc.body), extract.RideIDKeys); ok {
				t.Errorf("expected not found, got %d", id)
			}
		})
	}
}

func TestFindID_NestedEnvelope(t *testing.T) {
	body := mustDecode(t, `{"Resultado":{"resultado":{"SolicitacaoID":101}}}`)

	id, ok := extract.FindID(body, extract.RideIDKeys)
	if !ok || id != 101 {
		t.Errorf("expected 101, got %d (found=%v)", id, ok)
	}
}

func TestFindID_FirstMatchInDeclarationOrder(t *testing.T) {
	body := mustDecode(t, `{
		"items": [{"other": 1}, {"solicitacaoId": 7}],
		"SolicitacaoID": 8
	}`)

	id, ok := extract.FindID(body, extract.RideIDKeys)
	if !ok || id != 7 {
		t.Errorf("expected 7 (array entry declared first), got %d", id)
	}
}

func TestFindID_SkipsUnparsableMatchAndKeepsSearching(t *testing.T) {
	body := mustDecode(t, `{"SolicitacaoID": "", "inner": {"solicitacao_id": 55}}`)

	id, ok := extract.FindID(body, extract.RideIDKeys)
	if !ok || id != 55 {
		t.Errorf("expected 55, got %d (found=%v)", id, ok)
	}
}

func TestFindID_CyclicStructuresTerminate(t *testing.T) {
	m := map[string]any{"name": "loop"}
	m["self"] = m

	if _, ok := extract.FindID(m, extract.RideIDKeys); ok {
		t.Error("expected not found on cyclic map")
	}

	s := []any{nil, "x"}
	s[0] = s
	if _, ok := extract.FindID(s, extract.RideIDKeys); ok {
		t.Error("expected not found on cyclic slice")
	}

	obj := extract.NewObject()
	obj.Set("again", obj)
	if _, ok := extract.FindID(obj, extract.RideIDKeys); ok {
		t.Error("expected not found on cyclic object")
	}
}

func TestFindID_CyclicStructureStillFindsID(t *testing.T) {
	m := map[string]any{"SolicitacaoID": 12}
	m["a"] = m

	id, ok := extract.FindID(m, extract.RideIDKeys)
	if !ok || id != 12 {
		t.Errorf("expected 12, got %d (found=%v)", id, ok)
	}
}

func TestFindAmount_ParsesCurrencyStrings(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want float64
	}{
		{"number", `{"ValorFinal": 25.5}`, 25.5},
		{"decimal comma", `{"valor_final": "25,50"}`, 25.5},
		{"currency prefix", `{"Dados": {"ValorCorrida": "R$ 1.234,56"}}`, 1234.56},
		{"plain string", `{"valor": "18.00"}`, 18},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extract.FindAmount(mustDecode(t, tc.body), extract.FareKeys)
			if !ok || got != tc.want {
				t.Errorf("expected %v, got %v (found=%v)", tc.want, got, ok)
			}
		})
	}
}

func TestAliases_StringReturnsFirstNonEmpty(t *testing.T) {
	stage := mustDecode(t, `{"StatusSolicitacao": "", "statusSolicitacao": "Motorista a caminho"}`)

	if got := extract.StageStatus.String(stage); got != "Motorista a caminho" {
		t.Errorf("expected second alias to win, got %q", got)
	}
	if got := extract.DriverName.String(stage); got != "" {
		t.Errorf("expected empty driver, got %q", got)
	}
}

func TestUnwrap_StageEnvelope(t *testing.T) {
	wrapped := mustDecode(t, `{"EtapaSolicitacao": {"NomePrestador": "João"}}`)
	if got := extract.DriverName.String(extract.Unwrap(wrapped, extract.StageEnvelope)); got != "João" {
		t.Errorf("expected João, got %q", got)
	}

	bare := mustDecode(t, `{"NomePrestador": "Ana"}`)
	if got := extract.DriverName.String(extract.Unwrap(bare, extract.StageEnvelope)); got != "Ana" {
		t.Errorf("expected Ana, got %q", got)
	}
}

func TestDecode_PreservesKeyOrder(t *testing.T) {
	v := mustDecode(t, `{"z": 1, "a": {"y": true, "b": null}, "m": [1, "two"]}`)

	obj, ok := v.(*extract.Object)
	if !ok {
		t.Fatalf("expected *extract.Object, got %T", v)
	}
	keys := obj.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Errorf("unexpected key order %v", keys)
	}

	out, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"z":1,"a":{"y":true,"b":null},"m":[1,"two"]}` {
		t.Errorf("unexpected encoding %s", out)
	}
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	if _, err := extract.Decode([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Error("expected error for trailing data")
	}
	if _, err := extract.Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid json")
	}
}
