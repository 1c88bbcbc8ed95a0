package models

// Amounts in request bodies are decimal strings in 18-decimal base units.

type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type TransferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type AccountAmountRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

type BatchBurnRequest struct {
	Entries []AccountAmountRequest `json:"entries" binding:"required,dive"`
}

// WithdrawFeesRequest sweeps the whole fee balance when Amount is empty.
type WithdrawFeesRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount"`
}

type BurnFeesRequest struct {
	Amount string `json:"amount"`
}

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type LimitRequest struct {
	Limit string `json:"limit" binding:"required"`
}

type PolicyRequest struct {
	Policy string `json:"policy" binding:"required"`
}
