package transaction

import (
	"context"
	"time"

	models "github.com/fatflowers/casperflow/internal/models"
)

type TransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	// InvoiceID links the transfer to the invoice it settles, if any.
	InvoiceID string `json:"invoice_id,omitempty"`
	Network   string `json:"network,omitempty"`
}

type ContractCallRequest struct {
	From         string         `json:"from"`
	ContractHash string         `json:"contract_hash"`
	EntryPoint   string         `json:"entry_point"`
	Args         map[string]any `json:"args"`
	// Amount is the value moved by the call, recorded for reconciliation.
	Amount    int64  `json:"amount"`
	InvoiceID string `json:"invoice_id,omitempty"`
	Network   string `json:"network,omitempty"`
}

// TransactionManager submits chain transactions on behalf of callers and
// tracks their outcome. It never resubmits on its own.
type TransactionManager interface {
	SubmitTransfer(ctx context.Context, req *TransferRequest) (*models.ChainTransaction, error)
	SubmitContractCall(ctx context.Context, req *ContractCallRequest) (*models.ChainTransaction, error)
	// Refresh re-queries the node for a pending transaction and stores the outcome.
	Refresh(ctx context.Context, hash string) (*models.ChainTransaction, error)
	Get(ctx context.Context, hash string) (*models.ChainTransaction, error)
	// WaitForConfirmation polls until the transaction settles or timeout
	// elapses. A zero timeout uses the configured ceiling. On expiry it
	// returns errs.ErrConfirmationTimeout: the outcome is unknown.
	WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (*models.ChainTransaction, error)
}
