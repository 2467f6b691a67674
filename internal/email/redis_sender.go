package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cobrapyme/morosidad/internal/config"
)

// RedisSender stores outgoing reminder emails in Redis instead of sending
// them. Integration tests and the dev UI read the last message per recipient
// from here.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// Send stores a JSON representation of the email under a per-recipient key
// with a short TTL.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to encode email for redis: %w", err)
	}

	key := fmt.Sprintf("email:last:%s", primaryTo)
	if err := s.client.Set(ctx, key, payload, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to store email in redis: %w", err)
	}

	log.Printf("RedisSender: Email to %v (Subject: %s) stored under %s", to, subject, key)
	return nil
}
