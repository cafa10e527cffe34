// The agent drives the check-in pipeline on a scanner device. Scanned
// values arrive one per line on stdin (the camera decoder's stand-in),
// outcomes print to stdout, and the pending queue syncs in the
// background whenever the authority is reachable.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checkin-system/config"
	"checkin-system/models"
	"checkin-system/remote"
	"checkin-system/services"
	"checkin-system/store"
	"checkin-system/utils"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg := config.LoadConfig()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer st.Close()

	client := remote.NewClient(cfg.APIBaseURL, cfg.AdminSecret, cfg.RemoteTimeout)
	conn := services.NewConnectivityMonitor(false)
	breaker := utils.NewCircuitBreaker("sync", cfg.BreakerFailures, cfg.BreakerCooldown)
	syncService := services.NewSyncService(st, client, conn, breaker, cfg.SyncInterval)
	dedup := services.NewDeduplicator(cfg.DedupWindow)
	scanService := services.NewScanService(st, client, conn, dedup, syncService, cfg.ProcessingDelay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	// Credential check doubles as the first connectivity probe.
	if err := client.Ping(ctx); err != nil {
		log.Printf("Authority unreachable, starting offline: %v", err)
	} else {
		conn.SetOnline(true)
	}

	if conn.IsOnline() {
		tickets, err := client.Snapshot(ctx)
		if err != nil {
			log.Printf("Snapshot load failed, keeping previous mirror: %v", err)
		} else if err := st.PutAll(tickets); err != nil {
			log.Fatalf("Failed to store snapshot: %v", err)
		} else {
			log.Printf("Loaded snapshot of %d tickets", len(tickets))
		}
	}

	go syncService.Run(ctx)
	go probeLoop(ctx, client, conn, cfg.PingInterval)
	syncService.Kick()

	if n, err := st.CountPending(); err == nil && n > 0 {
		log.Printf("%d check-ins pending sync", n)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}

		result, err := scanService.ProcessScan(ctx, code, cfg.OperatorName)
		if err != nil {
			log.Printf("Error processing scan: %v", err)
			continue
		}
		if result == nil {
			// Dropped by deduplication.
			continue
		}
		printResult(result)
	}
}

func printResult(r *models.ScanResult) {
	switch r.Status {
	case models.StatusAvailable:
		fmt.Printf("OK      %s (%s)\n", r.Ticket.HolderName, r.Ticket.TicketType)
	case models.StatusUsed:
		usedAt := ""
		if r.Ticket.UsedAt != nil {
			usedAt = *r.Ticket.UsedAt
		}
		fmt.Printf("USED    %s at %s\n", r.Ticket.HolderName, usedAt)
	default:
		fmt.Println("UNKNOWN ticket not found")
	}
}

// probeLoop feeds the connectivity monitor from periodic authority
// pings, standing in for platform online/offline notifications.
func probeLoop(ctx context.Context, client *remote.Client, conn *services.ConnectivityMonitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetOnline(client.Ping(ctx) == nil)
		}
	}
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
