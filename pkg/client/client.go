// Package client provides the AgroTrace Go SDK for submitting supply-chain
// events and reading provenance chains from the ledger service.
package client

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
	"time"
)

// apiPrefix is prepended to every request path.
const apiPrefix = "/api/v1"

// Input identifies a source batch consumed by a transformation.
type Input struct {
	BatchID    string  `json:"batch_id"`
	QuantityKG float64 `json:"quantity_kg,omitempty"`
}

// Block is the wire form of a ledger block.
type Block struct {
	Index        int             `json:"index"`
	BatchID      string          `json:"batch_id"`
	DataHash     string          `json:"data_hash"`
	PreviousHash string          `json:"previous_hash"`
	BlockHash    string          `json:"block_hash"`
	Signer       string          `json:"signer"`
	Role         string          `json:"role"`
	EventType    string          `json:"event_type"`
	Inputs       []Input         `json:"inputs,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ChainEntry is one block of a resolved provenance chain, annotated with its
// display position.
type ChainEntry struct {
	Block
	VisualIndex int `json:"visual_index"`
}

// MintRequest is the payload for event submissions.
type MintRequest struct {
	BatchID   string          `json:"batch_id"`
	EventType string          `json:"event_type,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Inputs    []Input         `json:"inputs,omitempty"`
}

// MintReceipt is the service's acknowledgement of a minted block.
type MintReceipt struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash"`
	Signer string `json:"signer"`
	Block  Block  `json:"block"`
}

// LedgerOverview reports the chain height and current root hash.
type LedgerOverview struct {
	Blocks int    `json:"blocks"`
	Root   string `json:"root"`
}

// VerifyResult is the outcome of a full-chain integrity check.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Client is the AgroTrace SDK entry point.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained role token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client connected to baseURL.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetBearerToken replaces the role token attached to subsequent requests.
func (c *Client) SetBearerToken(token string) { c.bearerToken = token }

// IssueToken exchanges the admin secret for a role token and attaches it to
// the client for subsequent calls.
func (c *Client) IssueToken(ctx context.Context, adminSecret, participantID, role string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/tokens", map[string]string{
		"participant_id": participantID,
		"role":           role,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	var payload struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", err
	}
	c.bearerToken = payload.Token
	return payload.Token, nil
}

// MintEvent submits a generic traceability event. EventType must be set on
// the request.
func (c *Client) MintEvent(ctx context.Context, mr MintRequest) (*MintReceipt, error) {
	return c.mint(ctx, "/events", mr)
}

// MintHarvest registers a new harvest batch, minting its genesis block.
func (c *Client) MintHarvest(ctx context.Context, batchID string, payload json.RawMessage) (*MintReceipt, error) {
	return c.mint(ctx, "/events/harvests", MintRequest{BatchID: batchID, Payload: payload})
}

// MintPickup records a transport pickup for a batch.
func (c *Client) MintPickup(ctx context.Context, batchID string, payload json.RawMessage) (*MintReceipt, error) {
	return c.mint(ctx, "/events/pickups", MintRequest{BatchID: batchID, Payload: payload})
}

// MintDelivery records a transport delivery for a batch.
func (c *Client) MintDelivery(ctx context.Context, batchID string, payload json.RawMessage) (*MintReceipt, error) {
	return c.mint(ctx, "/events/deliveries", MintRequest{BatchID: batchID, Payload: payload})
}

// MintTransformation records the creation of a derived batch from one or more
// input batches.
func (c *Client) MintTransformation(ctx context.Context, batchID string, payload json.RawMessage, inputs []Input) (*MintReceipt, error) {
	return c.mint(ctx, "/events/transformations", MintRequest{BatchID: batchID, Payload: payload, Inputs: inputs})
}

func (c *Client) mint(ctx context.Context, path string, mr MintRequest) (*MintReceipt, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, mr)
	if err != nil {
		return nil, err
	}
	var receipt MintReceipt
	if err := c.do(req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Chain resolves the full provenance chain for a batch id. An unknown batch
// yields an empty chain, not an error.
func (c *Client) Chain(ctx context.Context, batchID string) ([]ChainEntry, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chain/"+url.PathEscape(batchID), nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Chain []ChainEntry `json:"chain"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Chain, nil
}

// Ledger returns the chain height and current root hash.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ledger", nil)
	if err != nil {
		return nil, err
	}
	var overview LedgerOverview
	if err := c.do(req, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

// Verify runs the service's full-chain integrity check.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ledger/verify", nil)
	if err != nil {
		return nil, err
	}
	var result VerifyResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Block fetches a single block by chain index.
func (c *Client) Block(ctx context.Context, idx int) (*Block, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ledger/blocks/"+strconv.Itoa(idx), nil)
	if err != nil {
		return nil, err
	}
	var block Block
	if err := c.do(req, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// BatchBlocks returns the blocks minted directly for one batch, without
// genealogy expansion.
func (c *Client) BatchBlocks(ctx context.Context, batchID string) ([]Block, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/batches/"+url.PathEscape(batchID)+"/blocks", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Blocks, nil
}

// Dossier fetches the raw off-chain payload stored under a data hash.
func (c *Client) Dossier(ctx context.Context, dataHash string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/dossiers/"+url.PathEscape(dataHash), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.doRaw(req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// newRequest builds a JSON request against the API prefix, attaching the
// bearer token when one is set.
func (c *Client) newRequest(ctx context.Context, method, path string, reqBody any) (*http.Request, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	return req, nil
}

// do executes the request and decodes a JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	body, err := c.doRaw(req)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doRaw executes the request and returns the raw body, turning non-2xx
// statuses into errors carrying the service's message.
func (c *Client) doRaw(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return nil, fmt.Errorf("service returned HTTP %d: %s", resp.StatusCode, payload.Error)
		}
		return nil, fmt.Errorf("service returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
