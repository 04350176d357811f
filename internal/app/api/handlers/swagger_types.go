package handlers

import (
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/statistics"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/pkg/response"
)

// The Resp* types only exist so swag can document the envelope of each
// endpoint; handlers build responses with response.OKT.

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespError is returned by every endpoint on failure.
type RespError struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ErrorData                `json:"data"`
}

type RespPlan struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Plan              `json:"data"`
}

type RespPlans struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Plan            `json:"data"`
}

type RespRecorder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.UsageRecorder     `json:"data"`
}

type RespRecorders struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.UsageRecorder   `json:"data"`
}

type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Subscription      `json:"data"`
}

type RespSubscriptions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Subscription    `json:"data"`
}

type RespUsageRecord struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.UsageRecord       `json:"data"`
}

type RespUsageRecords struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.UsageRecord     `json:"data"`
}

type RespUsageList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    UsageListResponse        `json:"data"`
}

type RespUsageSummary struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    usage.Summary            `json:"data"`
}

type RespInvoice struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Invoice           `json:"data"`
}

type RespInvoices struct {
	Code    response.APIResponseCode       `json:"code"`
	Message string                         `json:"message"`
	Data    billing.SearchInvoicesResponse `json:"data"`
}

type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.PaymentResult    `json:"data"`
}

type RespConsent struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.PaymentConsent    `json:"data"`
}

type RespConsents struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.PaymentConsent  `json:"data"`
}

type RespStakePosition struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stake.Position           `json:"data"`
}

type RespStakeConfig struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stake.Config             `json:"data"`
}

type RespStakeClaim struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stake.ClaimResult        `json:"data"`
}

type RespStakeWithdraw struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stake.WithdrawResult     `json:"data"`
}

type RespStakeInvoicePayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stake.InvoicePayment     `json:"data"`
}

type RespMerchantStats struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.MerchantStats `json:"data"`
}

type RespRenewalRun struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    RenewalRunResponse       `json:"data"`
}
