package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"checkin-system/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) (*RegistryService, redismock.ClientMock) {
	t.Helper()

	db, mock := redismock.NewClientMock()
	service := &RegistryService{
		Redis:  db,
		pubnub: nil,
		now: func() time.Time {
			return time.Date(2026, 8, 29, 21, 30, 0, 0, time.UTC)
		},
	}
	return service, mock
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func registryTicket(id, qrCode string, used bool) models.Ticket {
	ticket := models.Ticket{
		ID:         id,
		HolderName: "Holder " + id,
		TicketType: "general",
		QRCode:     qrCode,
		IsUsed:     models.Bool(used),
		CreatedAt:  "2026-08-01T10:00:00Z",
		UpdatedAt:  "2026-08-01T10:00:00Z",
	}
	if used {
		usedAt := "2026-08-20T18:00:00Z"
		by := "Ana"
		ticket.UsedAt = &usedAt
		ticket.ScannedBy = &by
	}
	return ticket
}

func TestRegistryService_FindByIdentifier_QRCode(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	ticket := registryTicket("t1", "QR1", false)
	mock.ExpectGet("qr:QR1").SetVal("t1")
	mock.ExpectGet("ticket:t1").SetVal(mustJSON(t, ticket))

	found, err := service.FindByIdentifier(context.Background(), "QR1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "t1", found.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_FindByIdentifier_DirectID(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	ticket := registryTicket("t1", "QR1", false)
	mock.ExpectGet("qr:t1").RedisNil()
	mock.ExpectGet("ticket:t1").SetVal(mustJSON(t, ticket))

	found, err := service.FindByIdentifier(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "QR1", found.QRCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_FindByIdentifier_NotFound(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	mock.ExpectGet("qr:nope").RedisNil()
	mock.ExpectGet("ticket:nope").RedisNil()

	found, err := service.FindByIdentifier(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.Nil(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_UseTicket_Success(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	used := registryTicket("t1", "QR1", true)
	now := "2026-08-29T21:30:00Z"

	mock.ExpectEval(useTicketScript, []string{"ticket:t1"},
		"2026-08-29T21:15:00Z", "Ana", now,
	).SetVal([]interface{}{int64(1), mustJSON(t, used)})

	ticket, err := service.UseTicket(context.Background(), "t1", "Ana", "2026-08-29T21:15:00Z")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.True(t, ticket.IsUsed.Bool())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_UseTicket_Conflict(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	used := registryTicket("t1", "QR1", true)
	now := "2026-08-29T21:30:00Z"

	mock.ExpectEval(useTicketScript, []string{"ticket:t1"},
		"2026-08-29T21:15:00Z", "Luis", now,
	).SetVal([]interface{}{int64(0), mustJSON(t, used)})

	ticket, err := service.UseTicket(context.Background(), "t1", "Luis", "2026-08-29T21:15:00Z")
	assert.ErrorIs(t, err, ErrTicketAlreadyUsed)

	// The canonical record rides along with the conflict.
	require.NotNil(t, ticket)
	require.NotNil(t, ticket.ScannedBy)
	assert.Equal(t, "Ana", *ticket.ScannedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_UseTicket_NotFound(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	now := "2026-08-29T21:30:00Z"
	mock.ExpectEval(useTicketScript, []string{"ticket:missing"},
		"2026-08-29T21:15:00Z", "Ana", now,
	).SetVal([]interface{}{int64(-1), ""})

	ticket, err := service.UseTicket(context.Background(), "missing", "Ana", "2026-08-29T21:15:00Z")
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.Nil(t, ticket)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_UseTicket_DefaultsUsedAt(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	used := registryTicket("t1", "QR1", true)
	now := "2026-08-29T21:30:00Z"

	// Empty scannedAt falls back to the server clock.
	mock.ExpectEval(useTicketScript, []string{"ticket:t1"},
		now, "Ana", now,
	).SetVal([]interface{}{int64(1), mustJSON(t, used)})

	_, err := service.UseTicket(context.Background(), "t1", "Ana", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_Snapshot(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	newer := registryTicket("t2", "QR2", false)
	older := registryTicket("t1", "QR1", true)

	mock.ExpectZRevRange("tickets:by_created", 0, -1).SetVal([]string{"t2", "t1"})
	mock.ExpectMGet("ticket:t2", "ticket:t1").SetVal([]interface{}{
		mustJSON(t, newer),
		mustJSON(t, older),
	})

	tickets, err := service.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "t2", tickets[0].ID)
	assert.Equal(t, "t1", tickets[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryService_SnapshotEmpty(t *testing.T) {
	service, mock := setupTestRegistry(t)
	defer mock.ClearExpect()

	mock.ExpectZRevRange("tickets:by_created", 0, -1).SetVal([]string{})

	tickets, err := service.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.NoError(t, mock.ExpectationsWereMet())
}
