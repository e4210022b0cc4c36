package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/observability"
	"go.uber.org/zap"
)

const codeDigits = 6

// Sender delivers a code to its destination.
type Sender interface {
	Send(ctx context.Context, destination, code string) error
}

// LogSender writes codes to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, destination, code string) error {
	s.logger.Info("one-time code issued", zap.String("destination", destination), zap.String("code", code))
	return nil
}

type Service struct {
	store    Store
	sender   Sender
	ttl      time.Duration
	generate func() (string, error)
}

func NewService(store Store, sender Sender, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, sender: sender, ttl: ttl, generate: generateCode}
}

// Issue creates a fresh code for destination, replacing any live one, and sends it.
func (s *Service) Issue(ctx context.Context, destination string) error {
	key := normalizeKey(destination)
	if key == "" {
		return fmt.Errorf("%w: destination is required", domain.ErrInvalidRequest)
	}
	code, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, key, code, s.ttl); err != nil {
		return err
	}
	if err := s.sender.Send(ctx, key, code); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	observability.IncrementOTPEvent("issued")
	return nil
}

// Verify consumes the live code for destination. A code can be used once.
func (s *Service) Verify(ctx context.Context, destination, code string) error {
	stored, err := s.store.Consume(ctx, normalizeKey(destination))
	if err != nil {
		observability.IncrementOTPEvent("rejected")
		return err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		observability.IncrementOTPEvent("rejected")
		return domain.ErrInvalidOTP
	}
	observability.IncrementOTPEvent("verified")
	return nil
}

func normalizeKey(destination string) string {
	return strings.ToLower(strings.TrimSpace(destination))
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
