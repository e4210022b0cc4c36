package domain

const (
	// DefaultCurrency is the only currency the wallet settles in.
	DefaultCurrency = "INR"

	TxStatusPending = "PENDING"
	TxStatusSuccess = "SUCCESS"
	TxStatusFailed  = "FAILED"

	AuditEntityTransfer = "transfer"
	AuditEntityAccount  = "account"

	AuditActionTransferFailed  = "transfer.failed"
	AuditActionAccountCreated  = "account.created"
	AuditActionAccountLoggedIn = "account.login"

	// DefaultHistoryLimit is the page size used when a caller does not ask for one.
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)
