package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hoaxify/internal/auth"
	"github.com/prn-tf/hoaxify/internal/domain"
	"github.com/prn-tf/hoaxify/internal/lock"
	"github.com/prn-tf/hoaxify/internal/metrics"
	"github.com/prn-tf/hoaxify/internal/pkg/crypto"
	"github.com/prn-tf/hoaxify/internal/repository"
	"github.com/prn-tf/hoaxify/internal/validation"
)

// lockRetryDelay is the pause between registration lock attempts.
const lockRetryDelay = 100 * time.Millisecond

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(hash, password string) bool
}

// ActivationNotifier delivers the activation token to a new user.
type ActivationNotifier interface {
	SendAccountActivation(ctx context.Context, to, token, lang string) error
}

// UserService handles the user account lifecycle.
type UserService struct {
	users    repository.UserRepository
	tx       repository.TxManager
	locker   lock.Locker
	notifier ActivationNotifier
	hasher   PasswordHasher
	metrics  *metrics.Metrics

	lockTTL         time.Duration
	defaultPageSize int
	maxPageSize     int

	logger zerolog.Logger
}

// UserServiceConfig contains the dependencies of UserService.
type UserServiceConfig struct {
	Users    repository.UserRepository
	Tx       repository.TxManager
	Locker   lock.Locker
	Notifier ActivationNotifier
	Hasher   PasswordHasher

	// Metrics is optional.
	Metrics *metrics.Metrics

	// LockTTL bounds how long one registration holds the per-email lock.
	LockTTL time.Duration

	// DefaultPageSize replaces page sizes outside [1, MaxPageSize].
	DefaultPageSize int
	MaxPageSize     int

	Logger zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(cfg UserServiceConfig) *UserService {
	if cfg.Locker == nil {
		cfg.Locker = lock.NewNoOpLocker()
	}
	if cfg.Hasher == nil {
		cfg.Hasher = crypto.NewPasswordHasher(0)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 10
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}

	return &UserService{
		users:           cfg.Users,
		tx:              cfg.Tx,
		locker:          cfg.Locker,
		notifier:        cfg.Notifier,
		hasher:          cfg.Hasher,
		metrics:         cfg.Metrics,
		lockTTL:         cfg.LockTTL,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		logger:          cfg.Logger.With().Str("service", "user").Logger(),
	}
}

// =============================================================================
// Registration
// =============================================================================

// RegisterInput contains the data needed to register a new user.
type RegisterInput struct {
	Username string
	Email    string
	Password string

	// Language selects the language of the activation e-mail.
	Language string
}

// Register validates input, stores an inactive user and mails its activation token.
// The user row is committed only once the e-mail has been accepted.
func (s *UserService) Register(ctx context.Context, input RegisterInput) error {
	err := s.register(ctx, input)

	var verr *ValidationError
	switch {
	case err == nil:
		s.metrics.UserEvent(metrics.EventRegister, metrics.ResultSuccess)
	case errors.As(err, &verr):
		s.metrics.UserEvent(metrics.EventRegister, metrics.ResultRejected)
	default:
		s.metrics.UserEvent(metrics.EventRegister, metrics.ResultError)
	}
	return err
}

func (s *UserService) register(ctx context.Context, input RegisterInput) error {
	failures, err := validation.ValidateRegistration(ctx, validation.Registration{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	}, s.users.ExistsByEmail)
	if err != nil {
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to check email existence")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	token, err := crypto.GenerateActivationToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate activation token")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	// Serialize registrations of the same address and re-check under the lock.
	lease, err := s.acquire(ctx, lock.Keys.Registration(input.Email))
	if err != nil {
		return err
	}
	if lease == nil {
		s.logger.Warn().Str("email", input.Email).Msg("registration lock busy")
		return newValidationError(validation.FieldEmail, validation.KeyEmailInUse)
	}
	defer s.release(context.WithoutCancel(ctx), lease)

	exists, err := s.users.ExistsByEmail(ctx, input.Email)
	if err != nil {
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to check email existence")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return newValidationError(validation.FieldEmail, validation.KeyEmailInUse)
	}

	user := domain.NewUser(input.Username, input.Email, passwordHash, token)

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, domain.ErrUserAlreadyExists) {
				return newValidationError(validation.FieldEmail, validation.KeyEmailInUse)
			}
			s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to create user")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}

		if err := s.notifier.SendAccountActivation(ctx, user.Email, token, input.Language); err != nil {
			s.logger.Warn().Err(err).Str("email", user.Email).Msg("activation e-mail failed, rolling back registration")
			return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
		}
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) || errors.Is(err, ErrEmailDelivery) || errors.Is(err, ErrInternalError) {
			return err
		}
		s.logger.Error().Err(err).Str("email", input.Email).Msg("registration transaction failed")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user registered")

	return nil
}

// acquire waits up to the lock TTL for the registration lock.
// A nil lease means another registration of the address kept it busy.
func (s *UserService) acquire(ctx context.Context, key string) (*lock.Lease, error) {
	lease, err := lock.Acquire(ctx, s.locker, key, s.lockTTL, s.lockTTL, lockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error().Err(err).Str("key", key).Msg("failed to acquire registration lock")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return lease, nil
}

func (s *UserService) release(ctx context.Context, lease *lock.Lease) {
	released, err := s.locker.Release(ctx, lease)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("key", lease.Key).Msg("failed to release registration lock")
	case !released:
		s.logger.Warn().Str("key", lease.Key).Msg("registration lock expired before release")
	}
}

// =============================================================================
// Activation
// =============================================================================

// Activate redeems an activation token. A token can be redeemed once.
func (s *UserService) Activate(ctx context.Context, token string) error {
	if token == "" {
		s.metrics.UserEvent(metrics.EventActivate, metrics.ResultRejected)
		return ErrInvalidToken
	}

	user, err := s.users.GetByActivationToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.metrics.UserEvent(metrics.EventActivate, metrics.ResultRejected)
			return ErrInvalidToken
		}
		s.metrics.UserEvent(metrics.EventActivate, metrics.ResultError)
		s.logger.Error().Err(err).Msg("failed to look up activation token")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	user.Activate()
	if err := s.users.Update(ctx, user); err != nil {
		s.metrics.UserEvent(metrics.EventActivate, metrics.ResultError)
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to activate user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.UserEvent(metrics.EventActivate, metrics.ResultSuccess)
	s.logger.Info().Int64("user_id", user.ID).Msg("user activated")
	return nil
}

// =============================================================================
// Listing & lookup
// =============================================================================

// Page is one page of active users.
type Page struct {
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
	PageSize    int               `json:"pageSize"`
	Users       []domain.UserView `json:"users"`
}

// ListUsers returns a zero-based page of active users ordered by ID.
// Negative pages become 0; sizes outside [1, max] become the default size.
func (s *UserService) ListUsers(ctx context.Context, page, size int) (*Page, error) {
	if page < 0 {
		page = 0
	}
	if size < 1 || size > s.maxPageSize {
		size = s.defaultPageSize
	}

	// A page past the addressable range only needs the total.
	opts := repository.ListOptions{Limit: size}
	if page > math.MaxInt/size {
		opts.Limit = 0
	} else {
		opts.Offset = page * size
	}

	result, err := s.users.ListActive(ctx, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	users := make([]domain.UserView, 0, len(result.Items))
	for _, u := range result.Items {
		users = append(users, u.View())
	}

	return &Page{
		TotalPages:  totalPages(result.Total, size),
		CurrentPage: page,
		PageSize:    size,
		Users:       users,
	}, nil
}

// totalPages is ceil(count / size).
func totalPages(count int64, size int) int {
	if count <= 0 {
		return 0
	}
	return int((count + int64(size) - 1) / int64(size))
}

// GetUser returns the public view of an active user.
// Inactive users are reported as not found.
func (s *UserService) GetUser(ctx context.Context, id int64) (*domain.UserView, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if user.Inactive {
		return nil, ErrUserNotFound
	}

	view := user.View()
	return &view, nil
}

// =============================================================================
// Update
// =============================================================================

// UpdateInput contains the data needed to update a user.
type UpdateInput struct {
	TargetID    int64
	Username    string
	Credentials *auth.Credentials
}

// UpdateUser renames the target user on behalf of its owner.
// Only the username changes; every guard failure is an ErrForbidden.
func (s *UserService) UpdateUser(ctx context.Context, input UpdateInput) (*domain.UserView, error) {
	user, err := s.authorizeUpdate(ctx, input)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			s.metrics.UserEvent(metrics.EventUpdate, metrics.ResultRejected)
			s.logger.Debug().Err(err).Int64("target_id", input.TargetID).Msg("update rejected")
		} else {
			s.metrics.UserEvent(metrics.EventUpdate, metrics.ResultError)
		}
		return nil, err
	}

	if failures := validation.ValidateUsername(input.Username); len(failures) > 0 {
		s.metrics.UserEvent(metrics.EventUpdate, metrics.ResultRejected)
		return nil, &ValidationError{Failures: failures}
	}

	user.Rename(input.Username)
	if err := s.users.Update(ctx, user); err != nil {
		s.metrics.UserEvent(metrics.EventUpdate, metrics.ResultError)
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to update user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.UserEvent(metrics.EventUpdate, metrics.ResultSuccess)
	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user updated")

	view := user.View()
	return &view, nil
}

// authorizeUpdate runs the update guards in order and returns the acting user.
func (s *UserService) authorizeUpdate(ctx context.Context, input UpdateInput) (*domain.User, error) {
	creds := input.Credentials
	if creds == nil {
		return nil, ErrNoCredentials
	}

	user, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUnknownCredentials
		}
		s.logger.Error().Err(err).Msg("failed to resolve credentials")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if user.ID != input.TargetID {
		return nil, ErrNotOwner
	}
	if user.Inactive {
		return nil, ErrInactiveAccount
	}
	if !s.hasher.Matches(user.PasswordHash, creds.Password) {
		return nil, ErrPasswordMismatch
	}

	return user, nil
}

// =============================================================================
// Authentication
// =============================================================================

// Authenticate verifies an e-mail and password pair.
// Malformed e-mail, unknown user and wrong password are indistinguishable;
// a correct password on an inactive account is an ErrInactiveAccount.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.UserSummary, error) {
	summary, err := s.authenticate(ctx, email, password)
	switch {
	case err == nil:
		s.metrics.UserEvent(metrics.EventAuthenticate, metrics.ResultSuccess)
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrForbidden):
		s.metrics.UserEvent(metrics.EventAuthenticate, metrics.ResultRejected)
	default:
		s.metrics.UserEvent(metrics.EventAuthenticate, metrics.ResultError)
	}
	return summary, err
}

func (s *UserService) authenticate(ctx context.Context, email, password string) (*domain.UserSummary, error) {
	if !validation.ValidEmail(email) {
		return nil, ErrAuthentication
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Log but don't expose whether the e-mail exists
			s.logger.Debug().Msg("unknown e-mail during authentication")
			return nil, ErrAuthentication
		}
		s.logger.Error().Err(err).Msg("failed to look up user for authentication")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if !s.hasher.Matches(user.PasswordHash, password) {
		s.logger.Debug().Int64("user_id", user.ID).Msg("invalid password during authentication")
		return nil, ErrAuthentication
	}

	if !user.CanAuthenticate() {
		s.logger.Debug().Int64("user_id", user.ID).Msg("inactive user attempted authentication")
		return nil, ErrInactiveAccount
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user authenticated")

	summary := user.Summary()
	return &summary, nil
}
