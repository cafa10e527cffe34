package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"checkin-system/models"
	"checkin-system/monitoring"
	"checkin-system/remote"
	"checkin-system/store"
	"checkin-system/utils"
)

// SyncService drains the pending-use queue against the remote
// authority. The remote's conditional-update outcome is authoritative:
// both acceptance and conflict retire the entry and overwrite the
// local mirror with the canonical record; only transient failures
// leave an entry queued for a later pass.
type SyncService struct {
	store    *store.Store
	remote   *remote.Client
	conn     *ConnectivityMonitor
	breaker  *utils.CircuitBreaker
	interval time.Duration
	kick     chan struct{}

	// Serializes drain passes so overlapping callers cannot both list
	// an entry before either outcome retires it.
	passMu sync.Mutex
}

func NewSyncService(st *store.Store, rc *remote.Client, conn *ConnectivityMonitor, breaker *utils.CircuitBreaker, interval time.Duration) *SyncService {
	return &SyncService{
		store:    st,
		remote:   rc,
		conn:     conn,
		breaker:  breaker,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests a sync pass soon. Non-blocking; a pending kick absorbs
// later ones.
func (s *SyncService) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run drives syncing until ctx is cancelled: a periodic tick while
// online, an immediate pass on every Kick, and one on each
// offline-to-online transition.
func (s *SyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	transitions := s.conn.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncPending(ctx)
		case <-s.kick:
			s.SyncPending(ctx)
		case online := <-transitions:
			if online {
				log.Println("Back online, syncing pending check-ins")
				s.SyncPending(ctx)
			}
		}
	}
}

// SyncPending performs one drain pass. Safe to invoke concurrently:
// passes serialize, so an overlapping caller waits and then sees only
// the entries the first pass left behind; a retired entry is never
// submitted twice. A no-op while offline or when the queue is empty.
func (s *SyncService) SyncPending(ctx context.Context) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if !s.conn.IsOnline() {
		return
	}

	pending, err := s.store.ListPending()
	if err != nil {
		log.Printf("Error listing pending uses: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, p := range pending {
		s.syncOne(ctx, p)
	}

	if n, err := s.store.CountPending(); err == nil {
		monitoring.SetPendingDepth(n)
	}
}

func (s *SyncService) syncOne(ctx context.Context, p models.PendingUse) {
	err := s.breaker.Execute(func() error {
		ticket, err := s.remote.UseTicket(ctx, p)

		var conflict *remote.ConflictError
		switch {
		case err == nil:
			// Remote accepted this device's check-in.
			if ticket != nil {
				if err := s.store.Put(*ticket); err != nil {
					log.Printf("Error merging ticket %s after sync: %v", p.TicketID, err)
				}
			}
			if err := s.store.RemovePending(p.TicketID); err != nil {
				log.Printf("Error removing pending use %s: %v", p.TicketID, err)
			}
			monitoring.TrackSync("success")
			return nil

		case errors.As(err, &conflict):
			// Another check-in won the race. Not an error: converge on
			// whatever the authority accepted first.
			log.Printf("Ticket %s already used on server, merging canonical record", p.TicketID)
			if conflict.Ticket != nil {
				if err := s.store.Put(*conflict.Ticket); err != nil {
					log.Printf("Error merging ticket %s after conflict: %v", p.TicketID, err)
				}
			}
			if err := s.store.RemovePending(p.TicketID); err != nil {
				log.Printf("Error removing pending use %s: %v", p.TicketID, err)
			}
			monitoring.TrackSync("conflict")
			return nil

		case errors.Is(err, remote.ErrNotFound):
			// The authority no longer knows the ticket. Retrying cannot
			// help; retire the entry and keep the local record as is.
			log.Printf("Ticket %s unknown to server, dropping pending use", p.TicketID)
			if err := s.store.RemovePending(p.TicketID); err != nil {
				log.Printf("Error removing pending use %s: %v", p.TicketID, err)
			}
			monitoring.TrackSync("not_found")
			return nil

		default:
			// Transient: leave the entry queued for the next pass.
			log.Printf("Failed to sync ticket %s: %v", p.TicketID, err)
			monitoring.TrackSync("retry")
			return err
		}
	})
	if errors.Is(err, utils.ErrBreakerOpen) {
		monitoring.TrackSync("throttled")
	}
}
