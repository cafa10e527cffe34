package models

type ScanStatus string

const (
	// StatusAvailable means the ticket resolved and was newly marked
	// used by this scan.
	StatusAvailable ScanStatus = "available"
	// StatusUsed means the ticket resolved but was already used.
	StatusUsed ScanStatus = "used"
	// StatusNotFound means no matching ticket exists locally or remotely.
	StatusNotFound ScanStatus = "not_found"
)

// ScanResult is the terminal outcome of one logical scan.
type ScanResult struct {
	Ticket    *Ticket    `json:"ticket"`
	Status    ScanStatus `json:"status"`
	ScannedAt string     `json:"scanned_at"`
}

// HistoryItem is a ScanResult annotated with the raw code that was
// scanned, kept for operator review. Display-only, never persisted.
type HistoryItem struct {
	ScanResult
	QRCode string `json:"qr_code"`
}
