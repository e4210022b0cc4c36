package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/upi-wallet/internal/auth"
	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/gateway"
	"github.com/ayo6706/upi-wallet/internal/models"
	"github.com/ayo6706/upi-wallet/internal/otp"
	"github.com/ayo6706/upi-wallet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPasswordLength = 8

// AuthConfig controls account onboarding.
type AuthConfig struct {
	WelcomeBalance domain.Money
	HandleDomain   string
	RequireOTP     bool
}

type RegisterRequest struct {
	Name      string
	Email     string
	Password  string
	Handle    string
	OTP       string
	FaceImage []byte
}

type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *models.Account `json:"account"`
}

type AuthService struct {
	store  LedgerStore
	audit  *AuditService
	tokens *auth.TokenManager
	codes  *otp.Service
	faces  gateway.FaceVerifier
	cfg    AuthConfig
}

func NewAuthService(store LedgerStore, tokens *auth.TokenManager, codes *otp.Service, faces gateway.FaceVerifier, cfg AuthConfig) *AuthService {
	if strings.TrimSpace(cfg.HandleDomain) == "" {
		cfg.HandleDomain = "upi"
	}
	return &AuthService{
		store:  store,
		audit:  NewAuditService(store),
		tokens: tokens,
		codes:  codes,
		faces:  faces,
		cfg:    cfg,
	}
}

// RequestOTP issues a one-time code for email.
func (s *AuthService) RequestOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return fmt.Errorf("%w: a valid email is required", domain.ErrInvalidRequest)
	}
	return s.codes.Issue(ctx, email)
}

// Register creates a face-verified account funded with the welcome balance.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidRequest)
	case !validEmail(email):
		return nil, fmt.Errorf("%w: a valid email is required", domain.ErrInvalidRequest)
	case len(req.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRequest, minPasswordLength)
	}

	handle, err := s.resolveHandle(req.Handle, email)
	if err != nil {
		return nil, err
	}

	verified, confidence, err := s.faces.Verify(ctx, email, req.FaceImage)
	if err != nil {
		return nil, fmt.Errorf("verify face: %w", err)
	}
	if !verified {
		zap.L().Info("face verification rejected", zap.String("email", email), zap.Float64("confidence", confidence))
		return nil, domain.ErrFaceNotVerified
	}

	// Codes are single use; consume one only after the face check.
	if s.cfg.RequireOTP {
		if err := s.codes.Verify(ctx, email, req.OTP); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:             uuid.New(),
		Handle:         handle,
		DisplayName:    name,
		Email:          email,
		CredentialHash: hash,
		FaceVerified:   true,
		Balance:        s.cfg.WelcomeBalance,
		OpeningBalance: s.cfg.WelcomeBalance,
	}
	metadata, _ := json.Marshal(map[string]any{
		"handle":          handle,
		"face_confidence": confidence,
		"welcome_balance": s.cfg.WelcomeBalance.String(),
	})

	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.CreateAccount(ctx, account); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, domain.AuditEntityAccount, account.ID, &account.ID, domain.AuditActionAccountCreated, "", "ACTIVE", metadata)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return nil, domain.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("register account: %w", err)
	}

	zap.L().Info("account registered", zap.String("account_id", account.ID.String()), zap.String("handle", handle))
	return account, nil
}

// Login exchanges email and password for a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	account, err := s.store.Queries().GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := auth.ComparePassword(account.CredentialHash, password); err != nil {
		return nil, err
	}

	token, expires, err := s.tokens.Issue(account.ID, account.Handle)
	if err != nil {
		return nil, err
	}
	if err := s.audit.Write(ctx, nil, domain.AuditEntityAccount, account.ID, &account.ID, domain.AuditActionAccountLoggedIn, "", "", nil); err != nil {
		zap.L().Warn("failed to audit login", zap.Error(err))
	}
	return &LoginResult{Token: token, ExpiresAt: expires, Account: account}, nil
}

func (s *AuthService) resolveHandle(requested, email string) (string, error) {
	handle := normalizeHandle(requested)
	if handle == "" {
		local, _, _ := strings.Cut(email, "@")
		handle = local
	}
	if !strings.Contains(handle, "@") {
		handle = handle + "@" + strings.ToLower(strings.TrimSpace(s.cfg.HandleDomain))
	}
	local, provider, _ := strings.Cut(handle, "@")
	if local == "" || provider == "" || strings.ContainsAny(handle, " \t") || strings.Count(handle, "@") != 1 {
		return "", fmt.Errorf("%w: invalid handle %q", domain.ErrInvalidRequest, handle)
	}
	return handle, nil
}

func validEmail(email string) bool {
	local, host, ok := strings.Cut(email, "@")
	return ok && local != "" && strings.Contains(host, ".") && !strings.ContainsAny(email, " \t")
}
