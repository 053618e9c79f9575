// Package chain is the narrow channel to the blockchain collaborator.
// Settlement trusts the caller-supplied transaction hash; the gateway only
// checks its shape and answers liveness probes. No independent on-chain
// verification happens here.
package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrMalformedRef = errors.New("malformed transaction reference")

// 32-byte keccak hash, 0x-prefixed.
var txHashRE = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

type Gateway interface {
	VerifyRef(ref string) error
	BlockNumber(ctx context.Context) (uint64, error)
}

// RPC talks JSON-RPC to an Ethereum node (e.g. a Sepolia endpoint).
type RPC struct {
	url    string
	client *resty.Client
}

func NewRPC(url string) *RPC {
	c := resty.New().
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &RPC{url: url, client: c}
}

// VerifyRef checks that ref looks like a transaction hash. It does not ask
// the node whether the transaction exists.
func (g *RPC) VerifyRef(ref string) error {
	if !txHashRE.MatchString(ref) {
		return fmt.Errorf("%q: %w", ref, ErrMalformedRef)
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BlockNumber is used as a readiness probe for the node endpoint.
func (g *RPC) BlockNumber(ctx context.Context) (uint64, error) {
	var out rpcResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", Method: "eth_blockNumber", Params: []any{}, ID: 1}).
		SetResult(&out).
		Post(g.url)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("eth_blockNumber: http %d", resp.StatusCode())
	}
	if out.Error != nil {
		return 0, fmt.Errorf("eth_blockNumber: rpc %d: %s", out.Error.Code, out.Error.Message)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(out.Result, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: bad result %q: %w", out.Result, err)
	}
	return n, nil
}
