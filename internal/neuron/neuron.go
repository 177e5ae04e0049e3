// Package neuron implements the typed gateway to the external NNS
// governance canister and the pool-facing operator actions built on top of
// it (stake_to_nns_neuron, sync_nns_neuron_by_pool_id, add/remove hotkey,
// increase dissolve delay), grounded on internal/paycenter's JSON-RPC
// transport.
package neuron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Error wraps a logical failure returned by the governance canister's
// JSON-RPC error envelope.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("neuron: %s (code=%d)", e.Message, e.Code) }

// FullNeuron is the subset of manage_neuron's get_full_neuron response the
// scheduler's sync task needs to reconcile pool occupancy.
type FullNeuron struct {
	NeuronID      string
	StakeE8s      int64
	DissolveDelay int64
	Hotkeys       []string
}

// Gateway is the narrow interface the neuron service depends on.
type Gateway interface {
	ClaimOrRefresh(ctx context.Context, subAccount []byte) (neuronID string, err error)
	DisburseToNeuron(ctx context.Context, neuronID string, amount int64) error
	AddHotKey(ctx context.Context, neuronID, principal string) error
	RemoveHotKey(ctx context.Context, neuronID, principal string) error
	IncreaseDissolveDelay(ctx context.Context, neuronID string, additionalSeconds int64) error
	GetFullNeuron(ctx context.Context, neuronID string) (FullNeuron, error)
}

// RPCGateway implements Gateway as a JSON-RPC 2.0 client, mirroring
// paycenter.RPCGateway's transport.
type RPCGateway struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

// NewRPCGateway constructs a governance-canister gateway pointed at baseURL.
func NewRPCGateway(baseURL, authToken string) *RPCGateway {
	return &RPCGateway{
		baseURL:   baseURL,
		authToken: authToken,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *RPCGateway) ClaimOrRefresh(ctx context.Context, subAccount []byte) (string, error) {
	var result struct {
		NeuronID string `json:"neuronId"`
	}
	params := map[string]interface{}{"operation": "ClaimOrRefresh", "subAccount": subAccount}
	if err := g.call(ctx, "governance_manageNeuron", []interface{}{params}, &result); err != nil {
		return "", err
	}
	return result.NeuronID, nil
}

func (g *RPCGateway) DisburseToNeuron(ctx context.Context, neuronID string, amount int64) error {
	params := map[string]interface{}{"operation": "DisburseToNeuron", "neuronId": neuronID, "amount": amount}
	return g.call(ctx, "governance_manageNeuron", []interface{}{params}, nil)
}

func (g *RPCGateway) AddHotKey(ctx context.Context, neuronID, principal string) error {
	params := map[string]interface{}{"operation": "Configure", "action": "AddHotKey", "neuronId": neuronID, "principal": principal}
	return g.call(ctx, "governance_manageNeuron", []interface{}{params}, nil)
}

func (g *RPCGateway) RemoveHotKey(ctx context.Context, neuronID, principal string) error {
	params := map[string]interface{}{"operation": "Configure", "action": "RemoveHotKey", "neuronId": neuronID, "principal": principal}
	return g.call(ctx, "governance_manageNeuron", []interface{}{params}, nil)
}

func (g *RPCGateway) IncreaseDissolveDelay(ctx context.Context, neuronID string, additionalSeconds int64) error {
	params := map[string]interface{}{"operation": "Configure", "action": "IncreaseDissolveDelay", "neuronId": neuronID, "additionalDissolveDelaySeconds": additionalSeconds}
	return g.call(ctx, "governance_manageNeuron", []interface{}{params}, nil)
}

func (g *RPCGateway) GetFullNeuron(ctx context.Context, neuronID string) (FullNeuron, error) {
	var result FullNeuron
	params := map[string]interface{}{"neuronId": neuronID}
	if err := g.call(ctx, "governance_getFullNeuron", []interface{}{params}, &result); err != nil {
		return FullNeuron{}, err
	}
	return result, nil
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *RPCGateway) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := g.nextID.Add(1)
	buf, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(g.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+g.authToken)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("neuron: transport: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("neuron: transport: %s failed: status=%d body=%s", method, resp.StatusCode, string(body))
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("neuron: transport: %w", err)
	}
	if rpcResp.Error != nil {
		return &Error{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("neuron: transport: %w", err)
	}
	return nil
}
