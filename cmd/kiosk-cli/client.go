package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	cliNow  = time.Now
	rpcCall = callRPC

	httpClient = &http.Client{Timeout: 30 * time.Second}
)

// callRPC posts a JSON-RPC 2.0 request carrying params as its only positional
// parameter. bearer, when non-empty, is sent as the Authorization token.
func callRPC(method string, params interface{}, bearer string) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{},
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build request for %s: %w", rpcEndpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request to %s failed: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response (HTTP %d): %w", resp.StatusCode, err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func capabilityToken(flagValue string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(envCapToken)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("capability token required; pass --cap or set %s", envCapToken)
}

func operatorToken() (string, error) {
	if v := strings.TrimSpace(os.Getenv(envRPCToken)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("operator token required; set %s", envRPCToken)
}

// invoke performs the call and prints the result, returning the exit code.
func invoke(stdout, stderr io.Writer, method string, params interface{}, bearer string) int {
	result, rpcErr, err := rpcCall(method, params, bearer)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		if len(rpcErr.Data) > 0 && string(rpcErr.Data) != "null" {
			fmt.Fprintf(stderr, "  %s\n", rpcErr.Data)
		}
		return 1
	}
	writeResult(stdout, result)
	return 0
}

func writeResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		w.Write(result)
		fmt.Fprintln(w)
		return
	}
	pretty.WriteByte('\n')
	w.Write(pretty.Bytes())
}
