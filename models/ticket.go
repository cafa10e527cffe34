package models

// Ticket mirrors a record owned by the remote authority. Timestamps
// travel as RFC 3339 strings end to end, matching what the authority
// stores and returns.
type Ticket struct {
	ID          string  `json:"id" db:"id"`
	OrderID     string  `json:"order_id" db:"order_id"`
	HolderName  string  `json:"holder_name" db:"holder_name"`
	HolderEmail string  `json:"holder_email" db:"holder_email"`
	TicketType  string  `json:"ticket_type" db:"ticket_type"`
	QRCode      string  `json:"qr_code" db:"qr_code"`
	QRCodeURL   string  `json:"qr_code_url" db:"qr_code_url"`
	IsUsed      Bool    `json:"is_used" db:"is_used"`
	UsedAt      *string `json:"used_at" db:"used_at"`
	ScannedBy   *string `json:"scanned_by" db:"scanned_by"`
	CreatedAt   string  `json:"created_at" db:"created_at"`
	UpdatedAt   string  `json:"updated_at" db:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// PendingUse is a queued intent to mark a ticket used, not yet
// confirmed by the remote authority. At most one per ticket.
type PendingUse struct {
	TicketID  string `json:"ticketId" db:"ticket_id"`
	ScannedBy string `json:"scannedBy" db:"scanned_by"`
	ScannedAt string `json:"scannedAt" db:"scanned_at"`
}

func (PendingUse) TableName() string {
	return "pending_uses"
}
