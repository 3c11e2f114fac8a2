package tests

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ridewatch/internal/config"
	"ridewatch/internal/dispatch"
	"ridewatch/internal/extract"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	User   string
	Pass   string
	Body   []byte
}

func newDispatchServer(t *testing.T, handler http.HandlerFunc) (*dispatch.Client, func() recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var last recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		mu.Lock()
		last = recordedRequest{Method: r.Method, Path: r.URL.Path, Query: q, User: user, Pass: pass, Body: body}
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := dispatch.NewClient(config.UpstreamConfig{
		BaseURL:       srv.URL + "/",
		User:          "operator",
		Password:      "secret",
		ClientID:      10,
		ServiceItemID: 20,
		PaymentTypeID: 30,
		DefaultCEP:    "01000-000",
		City:          "São Paulo",
		State:         "SP",
		Timeout:       2 * time.Second,
	}, nil)

	return client, func() recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestDispatchClient_CreateRide(t *testing.T) {
	client, last := newDispatchServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Resultado":{"resultado":{"SolicitacaoID":101}}}`))
	})
	fare := 25.5

	result, err := client.CreateRide(context.Background(), dispatch.CreateRideInput{
		Origin:      "Rua A, 10",
		Destination: "Rua B, 20",
		Note:        "portão azul",
		Fare:        &fare,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id, ok := extract.FindID(result, extract.RideIDKeys); !ok || id != 101 {
		t.Errorf("expected id 101 in result, got %d", id)
	}

	req := last()
	if req.Method != http.MethodPost || req.Path != "/CriarSolicitacaoViagem" {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if req.User != "operator" || req.Pass != "secret" {
		t.Errorf("expected basic auth credentials, got %q/%q", req.User, req.Pass)
	}

	var payload struct {
		ClienteID      int `json:"ClienteID"`
		EnderecoOrigem struct {
			Endereco string `json:"Endereco"`
			Cidade   string `json:"Cidade"`
		} `json:"enderecoOrigem"`
		LstDestino []struct {
			Endereco string `json:"Endereco"`
		} `json:"lstDestino"`
		Observacao   string   `json:"Observacao"`
		ValorCorrida *float64 `json:"ValorCorrida"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ClienteID != 10 || payload.EnderecoOrigem.Endereco != "Rua A, 10" || payload.EnderecoOrigem.Cidade != "São Paulo" {
		t.Errorf("unexpected origin payload %+v", payload)
	}
	if len(payload.LstDestino) != 1 || payload.LstDestino[0].Endereco != "Rua B, 20" {
		t.Errorf("unexpected destination payload %+v", payload.LstDestino)
	}
	if payload.ValorCorrida == nil || *payload.ValorCorrida != 25.5 {
		t.Errorf("expected declared fare, got %v", payload.ValorCorrida)
	}
}

func TestDispatchClient_QueryStageUnwrapsEnvelope(t *testing.T) {
	client, last := newDispatchServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"EtapaSolicitacao":{"NomePrestador":"João","Placa":"ABC1234"}}`))
	})

	stage, err := client.QueryStage(context.Background(), 101)
	if err != nil {
		t.Fatalf("query stage: %v", err)
	}
	if got := extract.DriverName.String(stage); got != "João" {
		t.Errorf("expected unwrapped stage, got driver %q", got)
	}
	if req := last(); req.Path != "/EtapaSolicitacao" || req.Query["solicitacaoID"] != "101" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestDispatchClient_CancelSendsReason(t *testing.T) {
	client, last := newDispatchServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	if _, err := client.Cancel(context.Background(), 55); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	req := last()
	if req.Path != "/CancelarSolicitacao" || req.Query["tipo"] != "C" ||
		req.Query["cancEngano"] != "false" || req.Query["cliNaoEncontrado"] != "false" {
		t.Errorf("unexpected cancel request %+v", req)
	}
}

func TestDispatchClient_NonJSONErrorWrapped(t *testing.T) {
	client, _ := newDispatchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("gateway down"))
	})

	_, err := client.QueryRecord(context.Background(), 7)

	var upstream *dispatch.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", upstream.StatusCode)
	}
	body, ok := upstream.Body.(*extract.Object)
	if !ok {
		t.Fatalf("expected wrapped body, got %T", upstream.Body)
	}
	if raw, _ := body.Get("raw"); raw != "gateway down" {
		t.Errorf("expected raw text preserved, got %v", raw)
	}
	if !errors.Is(err, dispatch.ErrUpstream) {
		t.Error("expected errors.Is(err, ErrUpstream)")
	}
}

func TestDispatchClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := dispatch.NewClient(config.UpstreamConfig{BaseURL: baseURL, Timeout: time.Second}, nil)

	_, err := client.QueryStatus(context.Background(), 1)

	if !errors.Is(err, dispatch.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var transport *dispatch.TransportError
	if !errors.As(err, &transport) || transport.Err == nil {
		t.Error("expected the underlying error preserved")
	}
}
