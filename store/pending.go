package store

import (
	"fmt"

	"checkin-system/models"

	"github.com/pocketbase/dbx"
)

// MarkUsed flips the local ticket to used and enqueues the matching
// PendingUse in one transaction. Either both land or neither does; a
// queue entry must never exist without the mutation.
func (s *Store) MarkUsed(ticketID, scannedBy, now string) error {
	return s.db.Transactional(func(tx *dbx.Tx) error {
		res, err := tx.Update("tickets", dbx.Params{
			"is_used":    true,
			"used_at":    now,
			"scanned_by": scannedBy,
			"updated_at": now,
		}, dbx.HashExp{"id": ticketID}).Execute()
		if err != nil {
			return fmt.Errorf("store: mark ticket %s used: %w", ticketID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("store: mark used: ticket %s not found", ticketID)
		}

		_, err = tx.NewQuery(`
			INSERT INTO pending_uses (ticket_id, scanned_by, scanned_at)
			VALUES ({:id}, {:by}, {:at})
			ON CONFLICT(ticket_id) DO UPDATE SET scanned_by = {:by}, scanned_at = {:at}`).
			Bind(dbx.Params{"id": ticketID, "by": scannedBy, "at": now}).
			Execute()
		if err != nil {
			return fmt.Errorf("store: enqueue pending use %s: %w", ticketID, err)
		}
		return nil
	})
}

// ListPending returns the whole pending-use queue. Order carries no
// meaning; every entry is independent.
func (s *Store) ListPending() ([]models.PendingUse, error) {
	var pending []models.PendingUse
	if err := s.db.Select().From("pending_uses").All(&pending); err != nil {
		return nil, fmt.Errorf("store: list pending uses: %w", err)
	}
	return pending, nil
}

// RemovePending drops the queue entry for one ticket once the remote
// outcome is known. Removing an absent entry is not an error.
func (s *Store) RemovePending(ticketID string) error {
	if _, err := s.db.Delete("pending_uses", dbx.HashExp{"ticket_id": ticketID}).Execute(); err != nil {
		return fmt.Errorf("store: remove pending use %s: %w", ticketID, err)
	}
	return nil
}

func (s *Store) CountPending() (int, error) {
	var n int
	if err := s.db.NewQuery("SELECT COUNT(*) FROM pending_uses").Row(&n); err != nil {
		return 0, fmt.Errorf("store: count pending uses: %w", err)
	}
	return n, nil
}
