package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/logger"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
)

const (
	defaultCodeTTL      = 2 * time.Minute
	defaultExpiredGrace = 2 * time.Hour

	// DeliveryEmail and DeliverySMS select the notification channel for a code.
	DeliveryEmail = "email"
	DeliverySMS   = "sms"
)

var (
	// ErrVerificationUnavailable indicates the service is not properly configured.
	ErrVerificationUnavailable = errors.New("verification service unavailable")
	// ErrIssueRateLimited indicates the client IP is throttled for issuance.
	ErrIssueRateLimited = errors.New("too many codes requested")
	// ErrInvalidDestination indicates the notification channel rejected the
	// address or number itself.
	ErrInvalidDestination = errors.New("destination is not deliverable")
)

// VerificationService issues and checks one-time codes against the ledger,
// applying the rate limiter and per-destination uniqueness rules.
type VerificationService struct {
	cfg     *config.AppConfig
	ledger  port.CodeLedger
	limits  port.RateLimitStore
	notify  port.Notifier
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time
	newCode func() string
	ttl     time.Duration
	grace   time.Duration
}

// IssueCodeInput carries the context of an issuance request.
type IssueCodeInput struct {
	IP          string
	Destination string
	Delivery    string
	JourneyID   string
}

// IssueCodeResult describes the issued code.
type IssueCodeResult struct {
	Code      string
	ExpiresAt time.Time
}

// VerifyCodeInput carries the context of a verification attempt.
type VerifyCodeInput struct {
	IP          string
	Destination string
	Code        string
	JourneyID   string
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(cfg *config.AppConfig, ledger port.CodeLedger, limits port.RateLimitStore, notify port.Notifier, events port.EventPublisher, log *zap.Logger) *VerificationService {
	if log == nil {
		log = zap.NewNop()
	}

	ttl := defaultCodeTTL
	grace := defaultExpiredGrace
	if cfg != nil {
		if cfg.Verification.CodeTTL > 0 {
			ttl = cfg.Verification.CodeTTL
		}
		if cfg.Verification.ExpiredGrace > 0 {
			grace = cfg.Verification.ExpiredGrace
		}
	}

	return &VerificationService{
		cfg:     cfg,
		ledger:  ledger,
		limits:  limits,
		notify:  notify,
		events:  events,
		logger:  log,
		now:     time.Now,
		newCode: randomCode,
		ttl:     ttl,
		grace:   grace,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *VerificationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithCodeSource overrides code generation, used in tests.
func (s *VerificationService) WithCodeSource(source func() string) {
	if source != nil {
		s.newCode = source
	}
}

// IssueCode generates a fresh 5-digit code for the destination, deactivating
// any previously active codes, records an issuance event against the rate
// limiter, and delivers the code via the notification channel.
func (s *VerificationService) IssueCode(ctx context.Context, input IssueCodeInput) (*IssueCodeResult, error) {
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, errors.New("destination is required")
	}
	if s.ledger == nil || s.limits == nil || s.notify == nil {
		return nil, ErrVerificationUnavailable
	}

	blocked, err := s.limits.IsBlocked(ctx, input.IP, port.PurposeIssue)
	if err != nil {
		return nil, fmt.Errorf("check issuance rate limit: %w", err)
	}
	if blocked {
		return nil, ErrIssueRateLimited
	}

	now := s.now().UTC()
	code := domain.VerificationCode{
		Destination: destination,
		ExpiresAt:   now.Add(s.ttl),
		IsActive:    true,
		CreatedAt:   now,
	}

	// Conflicts on (destination, code) are rare given the code space; the
	// retry loop is a normal branch on the insert outcome.
	for {
		code.ID = uuid.New()
		code.Code = s.newCode()

		outcome, err := s.ledger.Insert(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("insert verification code: %w", err)
		}
		if outcome == domain.InsertAccepted {
			break
		}
	}

	if err := s.limits.RecordEvent(ctx, input.IP, port.PurposeIssue); err != nil {
		s.logger.Warn("record issuance event failed", zap.Error(err))
	}

	if err := s.deliver(ctx, destination, input.Delivery, code.Code); err != nil {
		if errors.Is(err, port.ErrInvalidDestination) {
			return nil, ErrInvalidDestination
		}
		return nil, fmt.Errorf("deliver verification code: %w", err)
	}

	s.publishIssued(ctx, input, code)

	return &IssueCodeResult{Code: code.Code, ExpiresAt: code.ExpiresAt}, nil
}

// VerifyCode checks a submitted code for the destination. The rate limiter is
// consulted first; a blocked IP short-circuits without touching the ledger.
// Every non-success outcome except rate limiting records a failed attempt.
func (s *VerificationService) VerifyCode(ctx context.Context, input VerifyCodeInput) (domain.VerifyResult, error) {
	if s.ledger == nil || s.limits == nil {
		return domain.VerifyResult{}, ErrVerificationUnavailable
	}

	blocked, err := s.limits.IsBlocked(ctx, input.IP, port.PurposeVerify)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("check verification rate limit: %w", err)
	}
	if blocked {
		return domain.VerifyResult{Status: domain.VerifyRateLimited}, nil
	}

	destination := strings.TrimSpace(input.Destination)
	submitted := strings.TrimSpace(input.Code)

	record, err := s.ledger.Find(ctx, destination, submitted)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.failure(ctx, input, domain.VerifyResult{Status: domain.VerifyUnknown}), nil
		}
		return domain.VerifyResult{}, fmt.Errorf("find verification code: %w", err)
	}

	if !record.IsActive {
		return s.failure(ctx, input, domain.VerifyResult{Status: domain.VerifyNotActive}), nil
	}

	now := s.now().UTC()
	if record.Expired(now) {
		result := domain.VerifyResult{
			Status:          domain.VerifyExpired,
			ExpiredRecently: now.Sub(record.ExpiresAt) < s.grace,
		}
		return s.failure(ctx, input, result), nil
	}

	consumed, err := s.ledger.Consume(ctx, record.ID)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("consume verification code: %w", err)
	}
	if !consumed {
		// Lost a race against a concurrent re-issuance or verification.
		return s.failure(ctx, input, domain.VerifyResult{Status: domain.VerifyNotActive}), nil
	}

	s.publishVerified(ctx, input, domain.VerifySuccess)

	return domain.VerifyResult{Status: domain.VerifySuccess}, nil
}

func (s *VerificationService) failure(ctx context.Context, input VerifyCodeInput, result domain.VerifyResult) domain.VerifyResult {
	if err := s.limits.RecordEvent(ctx, input.IP, port.PurposeVerify); err != nil {
		s.logger.Warn("record verification event failed", zap.Error(err))
	}
	s.publishVerified(ctx, input, result.Status)
	return result
}

func (s *VerificationService) deliver(ctx context.Context, destination, delivery, code string) error {
	switch delivery {
	case DeliverySMS:
		return s.notify.SendSMS(ctx, destination, fmt.Sprintf("Your confirmation code is %s", code))
	default:
		body := fmt.Sprintf("Use this code to confirm your email address: %s", code)
		return s.notify.SendEmail(ctx, destination, "Confirm your email address", body)
	}
}

func (s *VerificationService) publishIssued(ctx context.Context, input IssueCodeInput, code domain.VerificationCode) {
	if s.events == nil {
		return
	}

	event := domain.CodeIssuedEvent{
		EventID:           uuid.NewString(),
		JourneyID:         input.JourneyID,
		MaskedDestination: maskDestination(input.Delivery, code.Destination),
		Channel:           input.Delivery,
		ExpiresAt:         code.ExpiresAt,
		IssuedAt:          code.CreatedAt,
	}

	if err := s.events.PublishCodeIssued(ctx, event); err != nil {
		s.logger.Warn("publish code issued event failed", zap.Error(err))
	}
}

func (s *VerificationService) publishVerified(ctx context.Context, input VerifyCodeInput, status domain.VerifyStatus) {
	if s.events == nil {
		return
	}

	event := domain.CodeVerifiedEvent{
		EventID:           uuid.NewString(),
		JourneyID:         input.JourneyID,
		MaskedDestination: maskDestination(DeliveryEmail, input.Destination),
		Outcome:           status.String(),
		VerifiedAt:        s.now().UTC(),
	}

	if err := s.events.PublishCodeVerified(ctx, event); err != nil {
		s.logger.Warn("publish code verified event failed", zap.Error(err))
	}
}

func maskDestination(delivery, destination string) string {
	if delivery == DeliverySMS {
		return logger.MaskPhone(destination)
	}
	return logger.MaskEmail(destination)
}

// randomCode draws a uniform 5-digit code from [10000, 99999], so a leading
// zero never occurs.
func randomCode() string {
	span := big.NewInt(domain.CodeMax - domain.CodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		panic(fmt.Sprintf("generate verification code: %v", err))
	}
	return strconv.FormatInt(domain.CodeMin+n.Int64(), 10)
}
