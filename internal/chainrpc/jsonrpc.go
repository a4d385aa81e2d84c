package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call issues one JSON-RPC 2.0 request over HTTPS and decodes its result
// into a raw json.RawMessage, leaving method-specific decoding to the
// caller.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := jsonRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// EthCall issues an eth_call against `to` with calldata `data` at the
// "latest" block, returning the 0x-prefixed hex result.
func (c *Client) EthCall(ctx context.Context, to, data string) (string, error) {
	raw, err := c.Call(ctx, "eth_call", map[string]string{"to": to, "data": data}, "latest")
	if err != nil {
		return "", err
	}
	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return result, nil
}

// BlockNumber issues eth_blockNumber and returns the decoded block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return 0, err
	}
	return parseHexUint(hexStr)
}

// LogFilter parameters for eth_getLogs.
type LogFilter struct {
	Address   string
	Topics    []string
	FromBlock uint64
	ToBlock   uint64
}

// Log is a decoded eth_getLogs entry (topics/data left as hex for the
// caller's ABI decoder).
type Log struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
}

// GetLogs issues eth_getLogs for filter.
func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	params := map[string]interface{}{
		"fromBlock": toHex(filter.FromBlock),
		"toBlock":   toHex(filter.ToBlock),
	}
	if filter.Address != "" {
		params["address"] = filter.Address
	}
	if len(filter.Topics) > 0 {
		params["topics"] = filter.Topics
	}

	raw, err := c.Call(ctx, "eth_getLogs", params)
	if err != nil {
		return nil, err
	}
	var logs []Log
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func toHex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func parseHexUint(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "0x%x", &v)
	return v, err
}

// DefaultHTTPClient is used by callers constructing Clients outside of a
// Pool (e.g. one-off health probes).
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
