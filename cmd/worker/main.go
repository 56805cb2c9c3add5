package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusops/internal/config"
	"campusops/internal/queue"
	"campusops/internal/schedule"
	"campusops/internal/store"
	"campusops/internal/timeutil"
)

// Worker runs the fixed-interval session auto-advancer and consumes scan
// audit messages, keeping per-student entry counters in Redis.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusops:scans")
	}

	sessions := schedule.NewService(schedule.NewRepository(db.Client), nil)

	// The API also advances lazily on read paths; this loop keeps statuses
	// fresh during quiet periods.
	go func() {
		ticker := time.NewTicker(cfg.AdvanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessions.AdvanceFinished(ctx); n > 0 {
					log.Printf("advanced %d finished session(s)", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "scan" {
			continue
		}

		var audit queue.ScanAudit
		if err := json.Unmarshal(msg.Body, &audit); err != nil {
			log.Printf("bad scan audit payload: %v", err)
			continue
		}

		if audit.Action == "ENTRY" {
			key := "campusops:entries:" + audit.StudentID + ":" + timeutil.FormatDate(audit.At)
			if err := redisClient.Client.Incr(ctx, key).Err(); err != nil {
				log.Printf("entry counter incr failed for %s: %v", audit.StudentID, err)
			} else {
				_ = redisClient.Client.Expire(ctx, key, 48*time.Hour).Err()
			}
		}
		log.Printf("scan %s student=%s session=%s device=%s", audit.Action, audit.StudentID, audit.SessionID, audit.DeviceID)
	}

	log.Println("worker stopped")
}
