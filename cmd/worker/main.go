package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"labslot/internal/config"
	"labslot/internal/notify"
	"labslot/internal/queue"
	"labslot/internal/store"
)

// Worker consumes notification messages and delivers emails. Delivery is
// best-effort: a failed send is logged and the message dropped, never
// retried, so a broken mail server can never block bookings.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "labslot:notifications")
	}

	mailer := notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	if mailer == nil {
		log.Println("SMTP not configured (SMTP_HOST unset); emails will be logged only")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != notify.MsgBookingConfirmed {
			continue
		}

		var conf notify.BookingConfirmation
		if err := json.Unmarshal(msg.Body, &conf); err != nil {
			log.Printf("bad notification payload: %v", err)
			continue
		}

		subject, body := conf.Render()
		if mailer == nil {
			log.Printf("email (dry run) to %s: %s", conf.Email, subject)
			continue
		}
		if err := mailer.Send(conf.Email, subject, body); err != nil {
			log.Printf("email to %s failed: %v", conf.Email, err)
			continue
		}
		log.Printf("email sent to %s", conf.Email)
	}

	log.Println("worker stopped")
}
