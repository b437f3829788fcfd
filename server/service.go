package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mscno/ghsync/pkg/tokenbox"
	"github.com/mscno/ghsync/server/model"
)

// Service is the entry point for triggering runs and reading integration state.
type Service struct {
	integrations IntegrationStore
	records      RecordStore
	syncer       *Syncer
	guard        RunGuard
	tokens       tokenbox.Sealer
	logger       *slog.Logger
	now          func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[model.UserId]*activeRun
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type ServiceConfig struct {
	Integrations IntegrationStore
	Records      RecordStore
	Syncer       *Syncer
	// Guard defaults to a LocalRunGuard.
	Guard RunGuard
	// Tokens seals access tokens before they are stored. Defaults to tokenbox.Plain.
	Tokens tokenbox.Sealer
	Logger *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		integrations: cfg.Integrations,
		records:      cfg.Records,
		syncer:       cfg.Syncer,
		guard:        cfg.Guard,
		tokens:       cfg.Tokens,
		logger:       cfg.Logger,
		now:          time.Now,
		base:         base,
		cancel:       cancel,
		active:       make(map[model.UserId]*activeRun),
	}
	if s.guard == nil {
		s.guard = NewLocalRunGuard()
	}
	if s.tokens == nil {
		s.tokens = tokenbox.Plain{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AuthorizedAccount is what the authorization flow learned about the account.
type AuthorizedAccount struct {
	UserID       model.UserId
	Username     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	AvatarURL    string
	ProfileURL   string
	Email        string
	Name         string
}

// Authorize stores the integration for a freshly authorized account and
// starts its first run in the background.
func (s *Service) Authorize(ctx context.Context, acct AuthorizedAccount) (*model.Integration, error) {
	if acct.UserID == "" {
		return nil, errors.New("authorized account has no user id")
	}
	sealed, err := s.tokens.Seal(acct.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to seal access token: %w", err)
	}
	var sealedRefresh string
	if acct.RefreshToken != "" {
		if sealedRefresh, err = s.tokens.Seal(acct.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to seal refresh token: %w", err)
		}
	}

	now := s.now()
	integration := model.Integration{
		UserID:       acct.UserID,
		Username:     acct.Username,
		AccessToken:  sealed,
		RefreshToken: sealedRefresh,
		TokenType:    acct.TokenType,
		Scope:        acct.Scope,
		AvatarURL:    acct.AvatarURL,
		ProfileURL:   acct.ProfileURL,
		Email:        acct.Email,
		Name:         acct.Name,
		ConnectedAt:  now,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// A new credential starts unsynced; the previous run stays visible.
	if existing, err := s.integrations.GetIntegration(ctx, acct.UserID); err == nil {
		integration.LastRun = existing.LastRun
	} else if !errors.Is(err, ErrIntegrationNotFound) {
		return nil, err
	}
	if err := s.integrations.UpsertIntegration(ctx, integration); err != nil {
		return nil, fmt.Errorf("failed to store integration: %w", err)
	}
	s.logger.Info("integration authorized", "user_id", acct.UserID.String(), "username", acct.Username)

	if err := s.launch(ctx, integration); err != nil {
		if !errors.Is(err, ErrSyncInProgress) {
			return nil, err
		}
		s.logger.Info("synchronization already running, not starting another", "user_id", acct.UserID.String())
	}
	return &integration, nil
}

// Resync starts a background run for an active integration.
func (s *Service) Resync(ctx context.Context, userID model.UserId) error {
	integration, err := s.activeIntegration(ctx, userID)
	if err != nil {
		return err
	}
	return s.launch(ctx, *integration)
}

// SyncNow runs in the foreground and returns the report. Disconnect cancels
// it like a background run.
func (s *Service) SyncNow(ctx context.Context, userID model.UserId) (*RunReport, error) {
	integration, err := s.activeIntegration(ctx, userID)
	if err != nil {
		return nil, err
	}
	runCtx, finish, err := s.start(ctx, ctx, userID)
	if err != nil {
		return nil, err
	}
	defer finish()
	return s.syncer.Run(runCtx, *integration)
}

func (s *Service) activeIntegration(ctx context.Context, userID model.UserId) (*model.Integration, error) {
	integration, err := s.integrations.GetIntegration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !integration.IsActive {
		return nil, ErrIntegrationInactive
	}
	return integration, nil
}

// launch starts a detached run. The run outlives the triggering request but
// stops on Close or Disconnect.
func (s *Service) launch(ctx context.Context, integration model.Integration) error {
	userID := integration.UserID
	runCtx, finish, err := s.start(ctx, s.base, userID)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer finish()
		if _, err := s.syncer.Run(runCtx, integration); err != nil {
			s.logger.Warn("background synchronization failed", "user_id", userID.String(), "error", err)
		}
	}()
	return nil
}

// start acquires the run guard and registers the run under s.mu, so a
// guard held by this process always has an entry in s.active. finish
// releases the guard before the entry goes away.
func (s *Service) start(ctx, parent context.Context, userID model.UserId) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.guard.Acquire(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	runCtx, cancel := context.WithCancel(parent)
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}
	s.active[userID] = ar

	finish := func() {
		cancel()
		release()
		s.mu.Lock()
		if s.active[userID] == ar {
			delete(s.active, userID)
		}
		s.mu.Unlock()
		close(ar.done)
	}
	return runCtx, finish, nil
}

// Status is the connection state shown to the account owner.
type Status struct {
	Connected      bool              `json:"connected"`
	UserID         string            `json:"userId,omitempty"`
	Username       string            `json:"username,omitempty"`
	AvatarURL      string            `json:"avatarUrl,omitempty"`
	ProfileURL     string            `json:"profileUrl,omitempty"`
	Email          string            `json:"email,omitempty"`
	Name           string            `json:"name,omitempty"`
	ConnectedAt    *time.Time        `json:"connectedAt,omitempty"`
	LastSyncedAt   *time.Time        `json:"lastSyncedAt,omitempty"`
	SyncInProgress bool              `json:"syncInProgress"`
	LastRun        *model.RunSummary `json:"lastRun,omitempty"`
}

// Status reports Connected=false for an absent or inactive integration.
func (s *Service) Status(ctx context.Context, userID model.UserId) (Status, error) {
	integration, err := s.activeIntegration(ctx, userID)
	if errors.Is(err, ErrIntegrationNotFound) || errors.Is(err, ErrIntegrationInactive) {
		return Status{Connected: false}, nil
	}
	if err != nil {
		return Status{}, err
	}
	running, err := s.guard.Running(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to read run state", "user_id", userID.String(), "error", err)
	}
	connectedAt := integration.ConnectedAt
	return Status{
		Connected:      true,
		UserID:         integration.UserID.String(),
		Username:       integration.Username,
		AvatarURL:      integration.AvatarURL,
		ProfileURL:     integration.ProfileURL,
		Email:          integration.Email,
		Name:           integration.Name,
		ConnectedAt:    &connectedAt,
		LastSyncedAt:   integration.LastSyncedAt,
		SyncInProgress: running,
		LastRun:        integration.LastRun,
	}, nil
}

// Counts returns the number of mirrored records per collection.
func (s *Service) Counts(ctx context.Context, userID model.UserId) (map[string]int, error) {
	counts := make(map[string]int, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		n, err := s.records.CountForUser(ctx, kind, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", kind.Collection(), err)
		}
		counts[kind.Collection()] = n
	}
	return counts, nil
}

// Records pages through one collection of a user's mirror.
func (s *Service) Records(ctx context.Context, kind model.Kind, userID model.UserId, offset, limit int) ([]model.Record, int, error) {
	return s.records.ListForUser(ctx, kind, userID, offset, limit)
}

// Disconnect deactivates the integration, stops its run and holds the run
// guard while every mirrored record and then the integration are deleted.
// Triggers arriving meanwhile see an inactive integration or a held guard.
func (s *Service) Disconnect(ctx context.Context, userID model.UserId) error {
	if _, err := s.integrations.GetIntegration(ctx, userID); err != nil {
		return err
	}
	err := s.integrations.UpdateIntegration(ctx, userID, func(i model.Integration) (model.Integration, error) {
		i.IsActive = false
		i.UpdatedAt = s.now()
		return i, nil
	})
	if err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}

	release, err := s.stopRun(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.records.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if err := s.integrations.DeleteIntegration(ctx, userID); err != nil && !errors.Is(err, ErrIntegrationNotFound) {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	s.logger.Info("integration disconnected", "user_id", userID.String())
	return nil
}

// stopRun cancels the run of userID in this process until the guard can be
// taken. A guard held by another process is reported as ErrSyncInProgress.
func (s *Service) stopRun(ctx context.Context, userID model.UserId) (func(), error) {
	for {
		release, err := s.guard.Acquire(ctx, userID)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrSyncInProgress) {
			return nil, err
		}
		s.mu.Lock()
		ar := s.active[userID]
		s.mu.Unlock()
		if ar == nil {
			return nil, err
		}
		ar.cancel()
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background runs and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
