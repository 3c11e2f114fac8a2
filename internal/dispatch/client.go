// Package dispatch is the HTTP client for the third-party ride dispatch API.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridewatch/internal/config"
	"ridewatch/internal/extract"
)

// Upstream endpoint paths, relative to the configured base URL.
const (
	createPath = "/CriarSolicitacaoViagem"
	stagePath  = "/EtapaSolicitacao"
	statusPath = "/SolicitacaoStatus"
	recordPath = "/ConsultarSolicitacao"
	cancelPath = "/CancelarSolicitacao"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// CreateRideInput contains the user supplied part of a ride creation.
type CreateRideInput struct {
	Origin      string
	Destination string
	Note        string
	Fare        *float64
}

// Address is the upstream address shape.
type Address struct {
	CEP         string `json:"CEP"`
	Endereco    string `json:"Endereco"`
	Cidade      string `json:"Cidade"`
	EstadoSigla string `json:"EstadoSigla"`
}

// createPayload is the body of CriarSolicitacaoViagem.
type createPayload struct {
	ClienteID       int       `json:"ClienteID"`
	ServicoItemID   int       `json:"ServicoItemID"`
	TipoPagamentoID int       `json:"TipoPagamentoID"`
	EnderecoOrigem  Address   `json:"enderecoOrigem"`
	LstDestino      []Address `json:"lstDestino"`
	Observacao      string    `json:"Observacao"`
	ValorCorrida    *float64  `json:"ValorCorrida,omitempty"`
}

// Client issues create/query/cancel calls against the dispatch API using
// fixed basic-auth credentials.
type Client struct {
	cfg        config.UpstreamConfig
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Client. When nrApp is non-nil outbound calls are
// recorded as external segments of the transaction found in the context.
func NewClient(cfg config.UpstreamConfig, nrApp *newrelic.Application) *Client {
	transport := http.DefaultTransport
	if nrApp != nil {
		transport = newrelic.NewRoundTripper(transport)
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// CreateRide asks the dispatch API for a new ride.
func (c *Client) CreateRide(ctx context.Context, in CreateRideInput) (any, error) {
	payload := createPayload{
		ClienteID:       c.cfg.ClientID,
		ServicoItemID:   c.cfg.ServiceItemID,
		TipoPagamentoID: c.cfg.PaymentTypeID,
		EnderecoOrigem:  c.address(in.Origin),
		LstDestino:      []Address{c.address(in.Destination)},
		Observacao:      strings.TrimSpace(in.Note),
		ValorCorrida:    in.Fare,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode create payload: %w", err)
	}

	return c.do(ctx, "create ride", http.MethodPost, createPath, nil, body)
}

// QueryStage returns the current stage snapshot of a ride (driver, vehicle,
// status) with the EtapaSolicitacao envelope removed.
func (c *Client) QueryStage(ctx context.Context, rideID int64) (any, error) {
	data, err := c.do(ctx, "query stage", http.MethodGet, stagePath, rideQuery(rideID), nil)
	if err != nil {
		return nil, err
	}
	return extract.Unwrap(data, extract.StageEnvelope), nil
}

// QueryStatus returns the general status of a ride.
func (c *Client) QueryStatus(ctx context.Context, rideID int64) (any, error) {
	return c.do(ctx, "query status", http.MethodGet, statusPath, rideQuery(rideID), nil)
}

// QueryRecord returns the full record of a ride, including its final fare.
func (c *Client) QueryRecord(ctx context.Context, rideID int64) (any, error) {
	return c.do(ctx, "query record", http.MethodGet, recordPath, rideQuery(rideID), nil)
}

// Cancel cancels a ride on behalf of the customer.
func (c *Client) Cancel(ctx context.Context, rideID int64) (any, error) {
	q := rideQuery(rideID)
	q.Set("tipo", "C")
	q.Set("cancEngano", "false")
	q.Set("cliNaoEncontrado", "false")

	return c.do(ctx, "cancel ride", http.MethodPost, cancelPath, q, nil)
}

func (c *Client) address(street string) Address {
	return Address{
		CEP:         c.cfg.DefaultCEP,
		Endereco:    strings.TrimSpace(street),
		Cidade:      c.cfg.City,
		EstadoSigla: c.cfg.State,
	}
}

func rideQuery(rideID int64) url.Values {
	q := url.Values{}
	q.Set("solicitacaoID", strconv.FormatInt(rideID, 10))
	return q
}

// do sends one request and returns the parsed body. Non-2xx answers become
// *UpstreamError with the body attached; network failures become
// *TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte) (any, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	data := parseBody(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: data}
	}

	return data, nil
}

// parseBody decodes JSON best-effort, wrapping anything else as {"raw": text}.
func parseBody(raw []byte) any {
	if data, err := extract.Decode(raw); err == nil {
		return data
	}
	wrapped := extract.NewObject()
	wrapped.Set("raw", string(raw))
	return wrapped
}
