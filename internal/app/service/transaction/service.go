package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/casper"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

type Service struct {
	store          store.Store
	chain          casper.Client
	log            *zap.SugaredLogger
	now            tool.Clock
	network        string
	pollInterval   time.Duration
	confirmTimeout time.Duration
	gas            int64
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, st store.Store, chain casper.Client, now tool.Clock) TransactionManager {
	poll := cfg.Casper.PollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	timeout := cfg.Casper.ConfirmTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		store:          st,
		chain:          chain,
		log:            log,
		now:            now,
		network:        cfg.Casper.Network,
		pollInterval:   poll,
		confirmTimeout: timeout,
		gas:            cfg.Casper.PaymentAmount,
	}
}

func (s *Service) networkOr(n string) string {
	if n != "" {
		return n
	}
	return s.network
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func (s *Service) SubmitTransfer(ctx context.Context, req *TransferRequest) (*models.ChainTransaction, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Amount <= 0 {
		return nil, errs.Invalidf("transfer amount must be > 0, got %d", req.Amount)
	}
	network := s.networkOr(req.Network)
	hash, err := s.chain.SubmitTransfer(ctx, casper.TransferRequest{
		From:    req.From,
		To:      req.To,
		Amount:  req.Amount,
		Network: network,
	})
	if err != nil {
		return nil, errs.ErrChainFailure.Withf("transfer submission failed").Wrap(err)
	}
	return s.persist(ctx, &models.ChainTransaction{
		Hash:      hash,
		Kind:      types.TxKindTransfer,
		Network:   network,
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		InvoiceID: optional(req.InvoiceID),
	})
}

func (s *Service) SubmitContractCall(ctx context.Context, req *ContractCallRequest) (*models.ChainTransaction, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.ContractHash == "" || req.EntryPoint == "" {
		return nil, errs.Invalidf("contract hash and entry point are required")
	}
	network := s.networkOr(req.Network)
	hash, err := s.chain.SubmitContractCall(ctx, casper.ContractCall{
		From:          req.From,
		ContractHash:  req.ContractHash,
		EntryPoint:    req.EntryPoint,
		Args:          req.Args,
		Network:       network,
		PaymentAmount: s.gas,
	})
	if err != nil {
		return nil, errs.ErrChainFailure.Withf("contract call %s failed", req.EntryPoint).Wrap(err)
	}
	return s.persist(ctx, &models.ChainTransaction{
		Hash:       hash,
		Kind:       types.TxKindContractCall,
		Network:    network,
		From:       req.From,
		To:         req.ContractHash,
		Amount:     req.Amount,
		EntryPoint: req.EntryPoint,
		InvoiceID:  optional(req.InvoiceID),
	})
}

func (s *Service) persist(ctx context.Context, tx *models.ChainTransaction) (*models.ChainTransaction, error) {
	now := s.now()
	tx.ID = tool.GenerateUUIDV7()
	tx.Status = types.TxStatusPending
	tx.SubmittedAt = now
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if err := s.store.ChainTxs().Create(ctx, tx); err != nil {
		// the transaction is on its way regardless; keep the hash in the logs
		logctx.FromCtx(ctx, s.log).Errorw("failed to persist chain transaction", "hash", tx.Hash, "kind", tx.Kind, "err", err)
		return nil, fmt.Errorf("failed to persist chain transaction %s: %w", tx.Hash, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("chain transaction submitted", "hash", tx.Hash, "kind", tx.Kind, "amount", tx.Amount)
	return tx, nil
}

func (s *Service) Get(ctx context.Context, hash string) (*models.ChainTransaction, error) {
	tx, err := s.store.ChainTxs().GetByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain transaction: %w", err)
	}
	return tx, nil
}

func (s *Service) Refresh(ctx context.Context, hash string) (*models.ChainTransaction, error) {
	tx, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx.Status != types.TxStatusPending {
		return tx, nil
	}
	out, err := s.chain.TransactionStatus(ctx, hash)
	if err != nil {
		return nil, errs.ErrChainFailure.Withf("status query failed").Wrap(err)
	}
	if out.Status == types.TxStatusPending {
		return tx, nil
	}
	now := s.now()
	tx.Status = out.Status
	tx.ErrorMessage = out.ErrorMessage
	tx.ConfirmedAt = &now
	tx.UpdatedAt = now
	if err := s.store.ChainTxs().Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to save chain transaction: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("chain transaction settled", "hash", hash, "status", tx.Status, "error", tx.ErrorMessage)
	return tx, nil
}

func (s *Service) WaitForConfirmation(ctx context.Context, hash string, timeout time.Duration) (*models.ChainTransaction, error) {
	if timeout <= 0 {
		timeout = s.confirmTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logctx.FromCtx(ctx, s.log)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		tx, err := s.Refresh(ctx, hash)
		switch {
		case err == nil && tx.Status != types.TxStatusPending:
			return tx, nil
		case errors.Is(err, errs.ErrTransactionNotFound):
			return nil, err
		case err != nil && ctx.Err() == nil:
			log.Warnw("confirmation poll failed, retrying", "hash", hash, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, errs.ErrConfirmationTimeout.Withf("transaction %s not confirmed within %s, outcome unknown", hash, timeout).Wrap(ctx.Err())
		case <-ticker.C:
		}
	}
}
