package types

// PaymentMethod is how an invoice was settled.
type PaymentMethod string

const (
	// PaymentMethodWallet is a direct transfer from the subscriber wallet, confirmed on chain.
	PaymentMethodWallet PaymentMethod = "wallet"
	// PaymentMethodStake offsets the invoice with accrued staking rewards.
	PaymentMethodStake PaymentMethod = "stake"
	// PaymentMethodConsent debits a merchant-scoped payment consent.
	PaymentMethodConsent PaymentMethod = "consent"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodWallet, PaymentMethodStake, PaymentMethodConsent:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusFailed    InvoiceStatus = "failed"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

type ConsentStatus string

const (
	ConsentStatusActive    ConsentStatus = "active"
	ConsentStatusRevoked   ConsentStatus = "revoked"
	ConsentStatusExhausted ConsentStatus = "exhausted"
)

// TxStatus is the chain-side state of a submitted transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusSucceeded TxStatus = "succeeded"
	TxStatusFailed    TxStatus = "failed"
)

type TxKind string

const (
	TxKindTransfer     TxKind = "transfer"
	TxKindContractCall TxKind = "contract_call"
)

// BasisPoints is a ratio in 1/10000 units.
type BasisPoints int64

const BasisPointsDenominator = 10_000

// Of returns amount * bps / 10000, truncated.
func (b BasisPoints) Of(amount int64) int64 {
	return amount * int64(b) / BasisPointsDenominator
}
