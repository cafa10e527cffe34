package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"checkin-system/models"

	"github.com/pocketbase/dbx"
)

const upsertTicketQuery = `
INSERT INTO tickets (id, order_id, holder_name, holder_email, ticket_type, qr_code, qr_code_url, is_used, used_at, scanned_by, created_at, updated_at)
VALUES ({:id}, {:order_id}, {:holder_name}, {:holder_email}, {:ticket_type}, {:qr_code}, {:qr_code_url}, {:is_used}, {:used_at}, {:scanned_by}, {:created_at}, {:updated_at})
ON CONFLICT(id) DO UPDATE SET
	order_id = excluded.order_id,
	holder_name = excluded.holder_name,
	holder_email = excluded.holder_email,
	ticket_type = excluded.ticket_type,
	qr_code = excluded.qr_code,
	qr_code_url = excluded.qr_code_url,
	is_used = excluded.is_used,
	used_at = excluded.used_at,
	scanned_by = excluded.scanned_by,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`

func ticketParams(t models.Ticket) dbx.Params {
	return dbx.Params{
		"id":           t.ID,
		"order_id":     t.OrderID,
		"holder_name":  t.HolderName,
		"holder_email": t.HolderEmail,
		"ticket_type":  t.TicketType,
		"qr_code":      t.QRCode,
		"qr_code_url":  t.QRCodeURL,
		"is_used":      t.IsUsed,
		"used_at":      t.UsedAt,
		"scanned_by":   t.ScannedBy,
		"created_at":   t.CreatedAt,
		"updated_at":   t.UpdatedAt,
	}
}

// GetByQRCode returns the ticket carrying the given QR code, or nil
// when none matches.
func (s *Store) GetByQRCode(code string) (*models.Ticket, error) {
	return s.oneTicket(dbx.HashExp{"qr_code": code})
}

// GetByID returns the ticket with the given id, or nil when none matches.
func (s *Store) GetByID(id string) (*models.Ticket, error) {
	return s.oneTicket(dbx.HashExp{"id": id})
}

func (s *Store) oneTicket(cond dbx.HashExp) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.Select().From("tickets").Where(cond).One(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select ticket: %w", err)
	}
	return &t, nil
}

// PutAll replaces the whole local mirror with the given snapshot in a
// single transaction.
func (s *Store) PutAll(tickets []models.Ticket) error {
	return s.db.Transactional(func(tx *dbx.Tx) error {
		if _, err := tx.NewQuery("DELETE FROM tickets").Execute(); err != nil {
			return fmt.Errorf("store: clear tickets: %w", err)
		}
		for _, t := range tickets {
			if _, err := tx.NewQuery(upsertTicketQuery).Bind(ticketParams(t)).Execute(); err != nil {
				return fmt.Errorf("store: insert ticket %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Put upserts a single ticket. Used by the scan resolver's
// write-through cache fill and by the synchronizer's canonical merge.
func (s *Store) Put(t models.Ticket) error {
	if _, err := s.db.NewQuery(upsertTicketQuery).Bind(ticketParams(t)).Execute(); err != nil {
		return fmt.Errorf("store: put ticket %s: %w", t.ID, err)
	}
	return nil
}

// Update applies a partial column patch to one ticket.
func (s *Store) Update(id string, patch dbx.Params) error {
	if len(patch) == 0 {
		return nil
	}
	if _, err := s.db.Update("tickets", patch, dbx.HashExp{"id": id}).Execute(); err != nil {
		return fmt.Errorf("store: update ticket %s: %w", id, err)
	}
	return nil
}

// ListUsed returns every locally-used ticket, most recently used
// first. The filter runs in Go rather than SQL so legacy is_used
// encodings ("true", "1", 1) are honored via models.Bool.
func (s *Store) ListUsed() ([]models.Ticket, error) {
	var all []models.Ticket
	if err := s.db.Select().From("tickets").All(&all); err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}

	used := make([]models.Ticket, 0, len(all))
	for _, t := range all {
		if t.IsUsed.Bool() {
			used = append(used, t)
		}
	}

	sort.Slice(used, func(i, j int) bool {
		return usedSortKey(used[i]) > usedSortKey(used[j])
	})
	return used, nil
}

func usedSortKey(t models.Ticket) string {
	if t.UsedAt != nil && *t.UsedAt != "" {
		return *t.UsedAt
	}
	if t.UpdatedAt != "" {
		return t.UpdatedAt
	}
	return t.CreatedAt
}
