package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"checkin-system/models"
	"checkin-system/monitoring"
	"checkin-system/remote"
	"checkin-system/store"
)

// DefaultOperator is attributed to check-ins when the caller supplies
// no operator name.
const DefaultOperator = "Operador"

const recentHistoryLimit = 50

// ScanService runs the scan pipeline: dedup, resolve (local first,
// remote fallback), check-in, history. All business outcomes are
// values, never errors; errors escape only for local storage faults.
type ScanService struct {
	store  *store.Store
	remote *remote.Client
	conn   *ConnectivityMonitor
	dedup  *Deduplicator
	sync   *SyncService

	releaseDelay time.Duration
	now          func() time.Time

	mu     sync.Mutex
	recent []models.HistoryItem
}

func NewScanService(st *store.Store, rc *remote.Client, conn *ConnectivityMonitor, dedup *Deduplicator, sync *SyncService, releaseDelay time.Duration) *ScanService {
	return &ScanService{
		store:        st,
		remote:       rc,
		conn:         conn,
		dedup:        dedup,
		sync:         sync,
		releaseDelay: releaseDelay,
		now:          time.Now,
	}
}

// ParseIdentifier extracts the ticket identifier from a raw scanned
// value. Structured payloads may carry ticket_id or qr_code; anything
// else falls back to the trimmed raw string.
func ParseIdentifier(rawValue string) string {
	trimmed := strings.TrimSpace(rawValue)

	var payload struct {
		TicketID string `json:"ticket_id"`
		QRCode   string `json:"qr_code"`
	}
	if err := json.Unmarshal([]byte(rawValue), &payload); err == nil {
		if payload.TicketID != "" {
			return payload.TicketID
		}
		if payload.QRCode != "" {
			return payload.QRCode
		}
	}
	return trimmed
}

// Resolve maps a raw scanned value to a ticket: local mirror first
// (qr_code, then id), then a remote lookup while online, persisting a
// remote hit back into the mirror. Returns nil when nothing matches;
// remote failures degrade to nil rather than surfacing.
func (s *ScanService) Resolve(ctx context.Context, rawValue string) (*models.Ticket, error) {
	identifier := ParseIdentifier(rawValue)

	ticket, err := s.store.GetByQRCode(identifier)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		if ticket, err = s.store.GetByID(identifier); err != nil {
			return nil, err
		}
	}
	if ticket != nil {
		return ticket, nil
	}

	if !s.conn.IsOnline() {
		return nil, nil
	}

	remoteTicket, err := s.remote.Lookup(ctx, rawValue)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			log.Printf("Error fetching remote ticket: %v", err)
		}
		return nil, nil
	}

	// Write-through cache fill so the next scan resolves offline.
	if err := s.store.Put(*remoteTicket); err != nil {
		return nil, err
	}
	return remoteTicket, nil
}

// CheckIn applies the one-way UNUSED -> USED transition. An already
// used ticket is rejected without mutation; otherwise the local
// mutation and the pending-queue entry commit atomically.
func (s *ScanService) CheckIn(ticket *models.Ticket, operator string) (models.ScanStatus, *models.Ticket, error) {
	if ticket.IsUsed.Bool() {
		return models.StatusUsed, ticket, nil
	}

	operator = strings.TrimSpace(operator)
	if operator == "" {
		operator = DefaultOperator
	}

	now := s.now().UTC().Format(time.RFC3339)
	if err := s.store.MarkUsed(ticket.ID, operator, now); err != nil {
		return "", nil, err
	}

	updated, err := s.store.GetByID(ticket.ID)
	if err != nil || updated == nil {
		// Fall back to the in-memory view of the committed mutation.
		copied := *ticket
		copied.IsUsed = true
		copied.UsedAt = &now
		copied.ScannedBy = &operator
		copied.UpdatedAt = now
		return models.StatusAvailable, &copied, err
	}
	return models.StatusAvailable, updated, nil
}

// ProcessScan runs one raw scanned value through the whole pipeline.
// A nil result means the scan was silently dropped by deduplication.
func (s *ScanService) ProcessScan(ctx context.Context, qrCode, operator string) (*models.ScanResult, error) {
	if !s.dedup.ShouldProcess(qrCode, s.now()) {
		return nil, nil
	}
	// Hold the lock slightly past completion to absorb camera jitter.
	defer time.AfterFunc(s.releaseDelay, s.dedup.Release)

	ticket, err := s.Resolve(ctx, qrCode)
	if err != nil {
		return nil, err
	}

	result := &models.ScanResult{
		Status:    models.StatusNotFound,
		ScannedAt: s.now().UTC().Format(time.RFC3339),
	}

	if ticket != nil {
		status, processed, err := s.CheckIn(ticket, operator)
		if err != nil {
			return nil, err
		}
		result.Status = status
		result.Ticket = processed
	}

	monitoring.TrackScan(string(result.Status))
	s.recordHistory(models.HistoryItem{ScanResult: *result, QRCode: qrCode})

	if result.Status == models.StatusAvailable {
		if n, err := s.store.CountPending(); err == nil {
			monitoring.SetPendingDepth(n)
		}
		if s.sync != nil && s.conn.IsOnline() {
			s.sync.Kick()
		}
	}

	return result, nil
}

func (s *ScanService) recordHistory(item models.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]models.HistoryItem{item}, s.recent...)
	if len(s.recent) > recentHistoryLimit {
		s.recent = s.recent[:recentHistoryLimit]
	}
}

// RecentScans returns this session's scan results, newest first.
func (s *ScanService) RecentScans() []models.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryItem, len(s.recent))
	copy(out, s.recent)
	return out
}

// History projects every locally-used ticket into display items,
// most recently used first.
func (s *ScanService) History() ([]models.HistoryItem, error) {
	used, err := s.store.ListUsed()
	if err != nil {
		return nil, err
	}

	items := make([]models.HistoryItem, 0, len(used))
	for i := range used {
		t := used[i]
		scannedAt := t.CreatedAt
		if t.UpdatedAt != "" {
			scannedAt = t.UpdatedAt
		}
		if t.UsedAt != nil && *t.UsedAt != "" {
			scannedAt = *t.UsedAt
		}
		items = append(items, models.HistoryItem{
			ScanResult: models.ScanResult{
				Ticket:    &t,
				Status:    models.StatusUsed,
				ScannedAt: scannedAt,
			},
			QRCode: t.QRCode,
		})
	}
	return items, nil
}
