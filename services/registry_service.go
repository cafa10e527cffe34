package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"checkin-system/models"
	"checkin-system/monitoring"
	"checkin-system/utils"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
	qrcode "github.com/skip2/go-qrcode"
)

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketAlreadyUsed = errors.New("ticket already used")
)

// useTicketScript flips a ticket to used only if it is not already.
// Running it as a single script makes "first write wins" hold no
// matter how many devices sync the same ticket concurrently. The
// is_used check mirrors the tolerant read boundary: legacy records
// may carry booleans, strings or numbers.
const useTicketScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
  return {-1, ''}
end
local t = cjson.decode(raw)
local used = t.is_used
if used == true or used == 1 or used == "true" or used == "1" then
  return {0, raw}
end
t.is_used = true
t.used_at = ARGV[1]
t.scanned_by = ARGV[2]
t.updated_at = ARGV[3]
local enc = cjson.encode(t)
redis.call('SET', KEYS[1], enc)
return {1, enc}`

const (
	ticketKeyPrefix = "ticket:"
	qrKeyPrefix     = "qr:"
	createdIndexKey = "tickets:by_created"

	// Channel where accepted check-ins are announced.
	usedChannel = "ticket-used"
)

// RegistryService is the authority's canonical ticket table. It owns
// the source of truth for is_used; devices only ever mutate it through
// the conditional UseTicket operation.
type RegistryService struct {
	Redis  *redis.Client
	pubnub *pubnub.PubNub
	now    func() time.Time
}

func NewRegistryService(redisClient *redis.Client, pn *pubnub.PubNub) *RegistryService {
	return &RegistryService{
		Redis:  redisClient,
		pubnub: pn,
		now:    time.Now,
	}
}

// IssueInput carries the holder fields for a newly issued ticket.
type IssueInput struct {
	OrderID     string `json:"order_id"`
	HolderName  string `json:"holder_name"`
	HolderEmail string `json:"holder_email"`
	TicketType  string `json:"ticket_type"`
}

// IssueTicket creates a ticket with a fresh id and QR code and stores
// it in the registry.
func (s *RegistryService) IssueTicket(ctx context.Context, in IssueInput) (*models.Ticket, error) {
	code, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("registry: generate qr code: %w", err)
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("registry: render qr image: %w", err)
	}

	now := s.now().UTC().Format(time.RFC3339)
	ticket := models.Ticket{
		ID:          uuid.NewString(),
		OrderID:     in.OrderID,
		HolderName:  in.HolderName,
		HolderEmail: in.HolderEmail,
		TicketType:  in.TicketType,
		QRCode:      code,
		QRCodeURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		IsUsed:      false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.putTicket(ctx, ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *RegistryService) putTicket(ctx context.Context, t models.Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("registry: marshal ticket: %w", err)
	}

	created, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		created = s.now().UTC()
	}

	if err := s.Redis.Set(ctx, ticketKeyPrefix+t.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("registry: store ticket %s: %w", t.ID, err)
	}
	if err := s.Redis.Set(ctx, qrKeyPrefix+t.QRCode, t.ID, 0).Err(); err != nil {
		return fmt.Errorf("registry: index qr code %s: %w", t.QRCode, err)
	}
	if err := s.Redis.ZAdd(ctx, createdIndexKey, redis.Z{
		Score:  float64(created.Unix()),
		Member: t.ID,
	}).Err(); err != nil {
		return fmt.Errorf("registry: index creation time %s: %w", t.ID, err)
	}
	return nil
}

// Snapshot returns every ticket, ordered by creation time descending.
func (s *RegistryService) Snapshot(ctx context.Context) ([]models.Ticket, error) {
	ids, err := s.Redis.ZRevRange(ctx, createdIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: list ticket ids: %w", err)
	}
	if len(ids) == 0 {
		return []models.Ticket{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ticketKeyPrefix + id
	}

	values, err := s.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: fetch tickets: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var t models.Ticket
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			log.Printf("Skipping undecodable ticket record: %v", err)
			continue
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// FindByIdentifier resolves a scanned identifier: the QR index first,
// then a direct id lookup.
func (s *RegistryService) FindByIdentifier(ctx context.Context, identifier string) (*models.Ticket, error) {
	id, err := s.Redis.Get(ctx, qrKeyPrefix+identifier).Result()
	if err == redis.Nil {
		id = identifier
	} else if err != nil {
		return nil, fmt.Errorf("registry: resolve qr code: %w", err)
	}

	raw, err := s.Redis.Get(ctx, ticketKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: fetch ticket %s: %w", id, err)
	}

	var t models.Ticket
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("registry: decode ticket %s: %w", id, err)
	}
	return &t, nil
}

// UseTicket conditionally marks a ticket used. On conflict the current
// canonical record is returned together with ErrTicketAlreadyUsed so
// the caller can merge without a second round trip.
func (s *RegistryService) UseTicket(ctx context.Context, ticketID, scannedBy, scannedAt string) (*models.Ticket, error) {
	usedAt := scannedAt
	if usedAt == "" {
		usedAt = s.now().UTC().Format(time.RFC3339)
	}
	updatedAt := s.now().UTC().Format(time.RFC3339)

	res, err := s.Redis.Eval(ctx, useTicketScript, []string{ticketKeyPrefix + ticketID}, usedAt, scannedBy, updatedAt).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: use ticket %s: %w", ticketID, err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return nil, fmt.Errorf("registry: use ticket %s: unexpected reply %v", ticketID, res)
	}

	status, _ := reply[0].(int64)
	raw, _ := reply[1].(string)

	if status == -1 {
		monitoring.TrackTicketUse("not_found")
		return nil, ErrTicketNotFound
	}

	var t models.Ticket
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("registry: decode ticket %s: %w", ticketID, err)
	}

	if status == 0 {
		monitoring.TrackTicketUse("conflict")
		return &t, ErrTicketAlreadyUsed
	}

	monitoring.TrackTicketUse("success")
	s.notifyUsed(t)
	return &t, nil
}

// notifyUsed announces an accepted check-in so dashboards and other
// devices can pick it up without polling.
func (s *RegistryService) notifyUsed(t models.Ticket) {
	if s.pubnub == nil {
		return
	}

	scannedBy := ""
	if t.ScannedBy != nil {
		scannedBy = *t.ScannedBy
	}

	_, _, err := s.pubnub.Publish().
		Channel(usedChannel).
		Message(map[string]any{
			"type":       "ticket_used",
			"ticket_id":  t.ID,
			"qr_code":    t.QRCode,
			"scanned_by": scannedBy,
			"used_at":    t.UsedAt,
		}).
		Execute()
	if err != nil {
		log.Printf("Error publishing ticket_used for %s: %v", t.ID, err)
	}
}
