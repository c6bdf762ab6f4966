// internal/chain/client.go
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chainproof/provenance-backend/internal/apperrors"
)

// RPCClient is a thin JSON-RPC wrapper over the remote ledger node.
type RPCClient struct {
	url        string
	commitment string
	httpClient *http.Client
	nextID     atomic.Int64

	confirmInterval time.Duration
	confirmTimeout  time.Duration
}

type RPCConfig struct {
	URL             string
	Commitment      string
	Timeout         time.Duration
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

func NewRPCClient(cfg RPCConfig) *RPCClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	confirmInterval := cfg.ConfirmInterval
	if confirmInterval <= 0 {
		confirmInterval = 500 * time.Millisecond
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}
	return &RPCClient{
		url:             strings.TrimSpace(cfg.URL),
		commitment:      commitment,
		httpClient:      &http.Client{Timeout: timeout},
		confirmInterval: confirmInterval,
		confirmTimeout:  confirmTimeout,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return apperrors.Internal("ledger client not configured", nil)
	}
	id := c.nextID.Add(1)
	reqBody := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return apperrors.InfraTimeout(fmt.Sprintf("ledger rpc %s timed out", method), err)
		}
		return apperrors.InfraTimeout(fmt.Sprintf("ledger rpc %s unreachable", method), err)
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return apperrors.Internal(fmt.Sprintf("ledger rpc %s: decode response", method), err)
	}
	if rpcResp.Error != nil {
		return apperrors.Internal(fmt.Sprintf("ledger rpc %s: error %d %s", method, rpcResp.Error.Code, rpcResp.Error.Message), nil)
	}
	if resp.StatusCode >= 300 {
		return apperrors.Internal(fmt.Sprintf("ledger rpc %s: unexpected status %d", method, resp.StatusCode), nil)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return apperrors.NotFoundf("ledger rpc %s returned no result", method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// GetTransaction fetches a confirmed transaction and decodes its embedded
// memo, when present.
func (c *RPCClient) GetTransaction(ctx context.Context, signature, commitment string) (*TransactionMeta, error) {
	if commitment == "" {
		commitment = c.commitment
	}
	var result struct {
		Slot      uint64 `json:"slot"`
		BlockTime int64  `json:"blockTime"`
		Memo      string `json:"memo"`
	}
	params := []interface{}{signature, map[string]interface{}{"commitment": commitment}}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	meta := &TransactionMeta{
		Signature: signature,
		Slot:      result.Slot,
		BlockTime: result.BlockTime,
	}
	if trimmed := strings.TrimSpace(result.Memo); trimmed != "" {
		var memo TransferMemo
		if err := json.Unmarshal([]byte(trimmed), &memo); err == nil {
			meta.Memo = &memo
		}
	}
	return meta, nil
}

func (c *RPCClient) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var result struct {
		Owner string `json:"owner"`
		Data  string `json:"data"`
	}
	params := []interface{}{address, map[string]interface{}{"encoding": "base64", "commitment": c.commitment}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, apperrors.MalformedAccount("account %s: data is not valid base64", address)
	}
	return &AccountInfo{Address: address, Owner: result.Owner, Data: raw}, nil
}

func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	opts := map[string]interface{}{"commitment": c.commitment}
	if limit > 0 {
		opts["limit"] = limit
	}
	if before != "" {
		opts["before"] = before
	}
	var result []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, opts}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RPCClient) GetProgramAccounts(ctx context.Context, programID string, dataSize int) ([]KeyedAccount, error) {
	opts := map[string]interface{}{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
	if dataSize > 0 {
		opts["filters"] = []map[string]interface{}{{"dataSize": dataSize}}
	}
	var result []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data string `json:"data"`
		} `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", []interface{}{programID, opts}, &result); err != nil {
		return nil, err
	}
	accounts := make([]KeyedAccount, 0, len(result))
	for _, entry := range result {
		raw, err := base64.StdEncoding.DecodeString(entry.Account.Data)
		if err != nil {
			return nil, apperrors.MalformedAccount("account %s: data is not valid base64", entry.Pubkey)
		}
		accounts = append(accounts, KeyedAccount{Address: entry.Pubkey, Data: raw})
	}
	return accounts, nil
}

// SubmitInstruction signs and submits one instruction, returning the
// transaction signature without waiting for confirmation.
func (c *RPCClient) SubmitInstruction(ctx context.Context, signer Signer, ix Instruction) (string, error) {
	payload, err := json.Marshal(ix)
	if err != nil {
		return "", err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return "", apperrors.Internal("signing instruction", err)
	}
	params := []interface{}{map[string]interface{}{
		"instruction": base64.StdEncoding.EncodeToString(payload),
		"signer":      signer.PublicKey(),
		"signature":   base64.StdEncoding.EncodeToString(sig),
	}}
	var result struct {
		Signature string `json:"signature"`
	}
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Signature), nil
}

// ConfirmTransaction polls signature status, racing the poll against the
// configured confirmation timeout. An exceeded bound is an infrastructure
// timeout, not a business failure.
func (c *RPCClient) ConfirmTransaction(ctx context.Context, signature string) error {
	deadline := time.NewTimer(c.confirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		var result struct {
			Statuses []struct {
				Confirmed bool   `json:"confirmed"`
				Err       string `json:"err"`
			} `json:"statuses"`
		}
		err := c.call(ctx, "getSignatureStatuses", []interface{}{[]string{signature}}, &result)
		if err == nil && len(result.Statuses) > 0 {
			status := result.Statuses[0]
			if status.Err != "" {
				return apperrors.Internal(fmt.Sprintf("transaction %s failed on chain: %s", signature, status.Err), nil)
			}
			if status.Confirmed {
				return nil
			}
		} else if err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
			return err
		}

		select {
		case <-ctx.Done():
			return apperrors.InfraTimeout(fmt.Sprintf("confirming transaction %s", signature), ctx.Err())
		case <-deadline.C:
			return apperrors.InfraTimeout(fmt.Sprintf("transaction %s unconfirmed after %s", signature, c.confirmTimeout), nil)
		case <-ticker.C:
		}
	}
}

// RequestAirdrop asks the node for a balance top-up. Test networks only.
func (c *RPCClient) RequestAirdrop(ctx context.Context, address string, amount uint64) (string, error) {
	var result struct {
		Signature string `json:"signature"`
	}
	if err := c.call(ctx, "requestAirdrop", []interface{}{address, amount}, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Signature), nil
}

var _ Client = (*RPCClient)(nil)
