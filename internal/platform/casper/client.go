// Package casper talks to the Casper network through a JSON-RPC endpoint
// and the cspr.live account API. Transaction construction and signing are
// delegated to the relay behind NodeURL; this package only submits requests
// and reads outcomes.
package casper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/metrics"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

var defaultBalanceAPIs = map[string]string{
	NetworkTestnet: "https://api.testnet.cspr.live",
	NetworkMainnet: "https://api.cspr.live",
}

// ErrRPC is wrapped by every error returned from the node.
var ErrRPC = errors.New("casper rpc error")

type TransferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  int64  `json:"amount,string"`
	Network string `json:"network"`
	// Memo is the transfer id recorded on chain.
	Memo uint64 `json:"memo,omitempty"`
}

type ContractCall struct {
	From         string         `json:"from"`
	ContractHash string         `json:"contract_hash"`
	EntryPoint   string         `json:"entry_point"`
	Args         map[string]any `json:"args"`
	Network      string         `json:"network"`
	// PaymentAmount is the gas budget in motes.
	PaymentAmount int64 `json:"payment_amount,string"`
}

// TxOutcome is the execution state of a submitted transaction.
type TxOutcome struct {
	Status       types.TxStatus
	ErrorMessage string
	BlockHash    string
}

// Client is the narrow view of the chain the billing core depends on.
type Client interface {
	SubmitTransfer(ctx context.Context, req TransferRequest) (string, error)
	SubmitContractCall(ctx context.Context, call ContractCall) (string, error)
	TransactionStatus(ctx context.Context, hash string) (TxOutcome, error)
	// Balance returns the liquid balance in motes as a decimal string, "0"
	// when the account is unknown.
	Balance(ctx context.Context, publicKey, network string) (string, error)
}

type Options struct {
	NodeURL       string
	BalanceAPIURL string
	Network       string
	HTTPClient    *http.Client
	Metrics       *metrics.Business
	Logger        *zap.SugaredLogger
}

type rpcClient struct {
	opts   Options
	http   *http.Client
	nextID atomic.Int64
}

func NewClient(opts Options) Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &rpcClient{opts: opts, http: hc}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, params, out any) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.opts.Metrics.ChainCall(method, outcome)
	}()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.NodeURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tid := logctx.TraceID(ctx); tid != "" {
		req.Header.Set("X-Request-ID", tid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRPC, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http %d", ErrRPC, method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrRPC, method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%w: %s: %d %s", ErrRPC, method, rr.Error.Code, rr.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", ErrRPC, method, err)
	}
	return nil
}

type submitResult struct {
	DeployHash      string `json:"deploy_hash"`
	TransactionHash string `json:"transaction_hash"`
}

func (r submitResult) hash() string {
	if r.TransactionHash != "" {
		return r.TransactionHash
	}
	return r.DeployHash
}

func (c *rpcClient) network(n string) string {
	if n != "" {
		return n
	}
	return c.opts.Network
}

func (c *rpcClient) SubmitTransfer(ctx context.Context, req TransferRequest) (string, error) {
	req.Network = c.network(req.Network)
	var res submitResult
	if err := c.call(ctx, "relay_submit_transfer", req, &res); err != nil {
		return "", err
	}
	if res.hash() == "" {
		return "", fmt.Errorf("%w: relay_submit_transfer: empty hash", ErrRPC)
	}
	logctx.FromCtx(ctx, c.opts.Logger).Infow("transfer submitted", "hash", res.hash(), "from", req.From, "to", req.To, "amount", req.Amount)
	return res.hash(), nil
}

func (c *rpcClient) SubmitContractCall(ctx context.Context, call ContractCall) (string, error) {
	call.Network = c.network(call.Network)
	var res submitResult
	if err := c.call(ctx, "relay_submit_contract_call", call, &res); err != nil {
		return "", err
	}
	if res.hash() == "" {
		return "", fmt.Errorf("%w: relay_submit_contract_call: empty hash", ErrRPC)
	}
	logctx.FromCtx(ctx, c.opts.Logger).Infow("contract call submitted", "hash", res.hash(), "entry_point", call.EntryPoint)
	return res.hash(), nil
}

type deployResult struct {
	ExecutionResults []struct {
		BlockHash string `json:"block_hash"`
		Result    struct {
			Success *json.RawMessage `json:"Success"`
			Failure *struct {
				ErrorMessage string `json:"error_message"`
			} `json:"Failure"`
		} `json:"result"`
	} `json:"execution_results"`
}

// TransactionStatus reads info_get_deploy. A deploy without execution
// results is still pending.
func (c *rpcClient) TransactionStatus(ctx context.Context, hash string) (TxOutcome, error) {
	var res deployResult
	if err := c.call(ctx, "info_get_deploy", map[string]any{"deploy_hash": hash}, &res); err != nil {
		return TxOutcome{}, err
	}
	if len(res.ExecutionResults) == 0 {
		return TxOutcome{Status: types.TxStatusPending}, nil
	}
	r := res.ExecutionResults[0]
	switch {
	case r.Result.Failure != nil:
		return TxOutcome{Status: types.TxStatusFailed, ErrorMessage: r.Result.Failure.ErrorMessage, BlockHash: r.BlockHash}, nil
	case r.Result.Success != nil:
		return TxOutcome{Status: types.TxStatusSucceeded, BlockHash: r.BlockHash}, nil
	}
	return TxOutcome{Status: types.TxStatusPending}, nil
}

func (c *rpcClient) balanceAPI(network string) string {
	if network == c.opts.Network && c.opts.BalanceAPIURL != "" {
		return c.opts.BalanceAPIURL
	}
	if u, ok := defaultBalanceAPIs[network]; ok {
		return u
	}
	return c.opts.BalanceAPIURL
}

type accountResponse struct {
	Data struct {
		Balance json.Number `json:"balance"`
	} `json:"data"`
}

// Balance degrades to "0" on any upstream failure; only a cancelled ctx is
// reported as an error.
func (c *rpcClient) Balance(ctx context.Context, publicKey, network string) (string, error) {
	network = c.network(network)
	endpoint := strings.TrimRight(c.balanceAPI(network), "/") + "/accounts/" + url.PathEscape(publicKey)
	log := logctx.FromCtx(ctx, c.opts.Logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.opts.Metrics.ChainCall("balance", "error")
		log.Warnw("balance lookup failed", "public_key", publicKey, "network", network, "err", err)
		return "0", nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.opts.Metrics.ChainCall("balance", "not_found")
		return "0", nil
	}
	var ar accountResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&ar); err != nil || ar.Data.Balance == "" {
		c.opts.Metrics.ChainCall("balance", "error")
		return "0", nil
	}
	c.opts.Metrics.ChainCall("balance", "ok")
	return ar.Data.Balance.String(), nil
}

// New builds the client from config.
func New(l *zap.SugaredLogger, cfg *config.Config, m *metrics.Business) Client {
	return NewClient(Options{
		NodeURL:       cfg.Casper.NodeURL,
		BalanceAPIURL: cfg.Casper.BalanceAPIURL,
		Network:       cfg.Casper.Network,
		Metrics:       m,
		Logger:        l,
	})
}

var Module = fx.Options(
	fx.Provide(New),
)
