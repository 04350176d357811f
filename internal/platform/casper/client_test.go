package casper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/pkg/types"
)

func rpcServer(t *testing.T, handle func(method string, params json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, rerr := handle(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitTransfer(t *testing.T) {
	var got TransferRequest
	srv := rpcServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		assert.Equal(t, "relay_submit_transfer", method)
		assert.NoError(t, json.Unmarshal(params, &got))
		return map[string]string{"deploy_hash": "abc123"}, nil
	})

	c := NewClient(Options{NodeURL: srv.URL, Network: NetworkTestnet})
	hash, err := c.SubmitTransfer(context.Background(), TransferRequest{From: "01aa", To: "01bb", Amount: 5_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
	assert.Equal(t, int64(5_000_000_000), got.Amount)
	assert.Equal(t, NetworkTestnet, got.Network)
}

func TestSubmitContractCall_RPCError(t *testing.T) {
	srv := rpcServer(t, func(string, json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	})
	c := NewClient(Options{NodeURL: srv.URL})
	_, err := c.SubmitContractCall(context.Background(), ContractCall{EntryPoint: "subscribe"})
	require.ErrorIs(t, err, ErrRPC)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestTransactionStatus(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		want    types.TxStatus
		wantMsg string
	}{
		{name: "pending", result: `{"execution_results":[]}`, want: types.TxStatusPending},
		{name: "success", result: `{"execution_results":[{"block_hash":"b1","result":{"Success":{"cost":"100"}}}]}`, want: types.TxStatusSucceeded},
		{name: "failure", result: `{"execution_results":[{"block_hash":"b1","result":{"Failure":{"error_message":"User error: 1"}}}]}`, want: types.TxStatusFailed, wantMsg: "User error: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rpcServer(t, func(method string, _ json.RawMessage) (any, *rpcError) {
				assert.Equal(t, "info_get_deploy", method)
				return json.RawMessage(tt.result), nil
			})
			c := NewClient(Options{NodeURL: srv.URL})
			out, err := c.TransactionStatus(context.Background(), "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, tt.wantMsg, out.ErrorMessage)
		})
	}
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/01known":
			_, _ = w.Write([]byte(`{"data":{"public_key":"01known","balance":123456789000}}`))
		case "/accounts/01garbled":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BalanceAPIURL: srv.URL, Network: NetworkTestnet})
	ctx := context.Background()

	bal, err := c.Balance(ctx, "01known", "")
	require.NoError(t, err)
	assert.Equal(t, "123456789000", bal)

	bal, err = c.Balance(ctx, "01unknown", NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, "0", bal)

	bal, err = c.Balance(ctx, "01garbled", NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, "0", bal)
}
