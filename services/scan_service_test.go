package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"checkin-system/models"
	"checkin-system/remote"
	"checkin-system/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "checkin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTicket(id, qrCode string, used bool) models.Ticket {
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

func newScanServiceForTest(t *testing.T, st *store.Store, client *remote.Client, online bool) (*ScanService, *ConnectivityMonitor) {
	t.Helper()

	conn := NewConnectivityMonitor(online)
	dedup := NewDeduplicator(2 * time.Second)
	svc := NewScanService(st, client, conn, dedup, nil, time.Millisecond)
	return svc, conn
}

func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain value", "ABC123", "ABC123"},
		{"padded value", "  ABC123  ", "ABC123"},
		{"json ticket_id", `{"ticket_id":"T9"}`, "T9"},
		{"json qr_code", `{"qr_code":"QR9"}`, "QR9"},
		{"ticket_id wins over qr_code", `{"ticket_id":"T9","qr_code":"QR9"}`, "T9"},
		{"json without known fields", `{"other":"x"}`, `{"other":"x"}`},
		{"broken json", `{"ticket_id":`, `{"ticket_id":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseIdentifier(tc.raw))
		})
	}
}

func TestScanService_ResolveLocalQRCodeThenID(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put(testTicket("T1", "QR1", false)))

	svc, _ := newScanServiceForTest(t, st, nil, false)

	byQR, err := svc.Resolve(context.Background(), "QR1")
	require.NoError(t, err)
	require.NotNil(t, byQR)
	assert.Equal(t, "T1", byQR.ID)

	byID, err := svc.Resolve(context.Background(), "T1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "QR1", byID.QRCode)
}

func TestScanService_ResolveOfflineMissReturnsNil(t *testing.T) {
	st := newTestStore(t)
	svc, _ := newScanServiceForTest(t, st, nil, false)

	ticket, err := svc.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestScanService_ResolveRemoteFallbackFillsCache(t *testing.T) {
	st := newTestStore(t)
	t4 := testTicket("T4", "QR4", false)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tickets/scan", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req struct {
			Mode     string `json:"mode"`
			RawValue string `json:"rawValue"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "scan", req.Mode)
		require.Equal(t, "QR4", req.RawValue)

		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ticket": t4})
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "secret", time.Second)
	svc, _ := newScanServiceForTest(t, st, client, true)

	ticket, err := svc.Resolve(context.Background(), "QR4")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "T4", ticket.ID)

	// Cache fill: the next lookup resolves without the remote.
	cached, err := st.GetByQRCode("QR4")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "T4", cached.ID)
}

func TestScanService_ResolveRemoteFailureDegradesToNil(t *testing.T) {
	st := newTestStore(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "secret", time.Second)
	svc, _ := newScanServiceForTest(t, st, client, true)

	ticket, err := svc.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestScanService_ResolveRemoteNotFoundIsNil(t *testing.T) {
	st := newTestStore(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Ticket not found"})
	}))
	defer server.Close()

	client := remote.NewClient(server.URL, "secret", time.Second)
	svc, _ := newScanServiceForTest(t, st, client, true)

	ticket, err := svc.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestScanService_CheckInIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put(testTicket("T1", "QR1", false)))
	svc, _ := newScanServiceForTest(t, st, nil, false)

	ticket, err := st.GetByID("T1")
	require.NoError(t, err)

	status, first, err := svc.CheckIn(ticket, "Ana")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, status)
	require.NotNil(t, first)
	assert.True(t, first.IsUsed.Bool())
	require.NotNil(t, first.ScannedBy)
	assert.Equal(t, "Ana", *first.ScannedBy)

	status, second, err := svc.CheckIn(first, "Luis")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUsed, status)
	// The rejected call never rewrites attribution.
	require.NotNil(t, second.ScannedBy)
	assert.Equal(t, "Ana", *second.ScannedBy)

	n, err := st.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanService_CheckInDefaultsOperator(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put(testTicket("T1", "QR1", false)))
	svc, _ := newScanServiceForTest(t, st, nil, false)

	ticket, err := st.GetByID("T1")
	require.NoError(t, err)

	_, updated, err := svc.CheckIn(ticket, "   ")
	require.NoError(t, err)
	require.NotNil(t, updated.ScannedBy)
	assert.Equal(t, DefaultOperator, *updated.ScannedBy)
}

func TestScanService_ProcessScanNotFound(t *testing.T) {
	st := newTestStore(t)
	svc, _ := newScanServiceForTest(t, st, nil, false)

	result, err := svc.ProcessScan(context.Background(), "missing", "Ana")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.StatusNotFound, result.Status)
	assert.Nil(t, result.Ticket)

	recent := svc.RecentScans()
	require.Len(t, recent, 1)
	assert.Equal(t, "missing", recent[0].QRCode)
}

func TestScanService_ProcessScanDedupWindow(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put(testTicket("T1", "ABC", false)))
	svc, _ := newScanServiceForTest(t, st, nil, false)

	base := time.Now()
	svc.now = func() time.Time { return base }

	first, err := svc.ProcessScan(context.Background(), "ABC", "Ana")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, models.StatusAvailable, first.Status)

	// Wait for the processing lock release (1ms in tests).
	time.Sleep(20 * time.Millisecond)

	// 1900ms later: silently dropped, no history entry.
	svc.now = func() time.Time { return base.Add(1900 * time.Millisecond) }
	dropped, err := svc.ProcessScan(context.Background(), "ABC", "Ana")
	require.NoError(t, err)
	assert.Nil(t, dropped)
	assert.Len(t, svc.RecentScans(), 1)

	// 2100ms later: processed again, now rejected as already used.
	svc.now = func() time.Time { return base.Add(2100 * time.Millisecond) }
	second, err := svc.ProcessScan(context.Background(), "ABC", "Ana")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, models.StatusUsed, second.Status)
}

func TestScanService_HistoryProjectsUsedTickets(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.PutAll([]models.Ticket{
		testTicket("T1", "QR1", false),
		testTicket("T2", "QR2", true),
	}))
	svc, _ := newScanServiceForTest(t, st, nil, false)

	history, err := svc.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusUsed, history[0].Status)
	assert.Equal(t, "QR2", history[0].QRCode)
	assert.Equal(t, "2026-08-20T18:00:00Z", history[0].ScannedAt)
}
