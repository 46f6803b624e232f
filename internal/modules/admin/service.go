// Package admin implements the owner-gated configuration surface: the pause
// flag, rebalancing parameters, role grants, and the event feed. These are
// plain field setters; the engine modules read their resulting values.
package admin

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/events"
	"github.com/codebymuri/DeFiYield/internal/modules/registry"
	"github.com/codebymuri/DeFiYield/internal/modules/rebalancing"
	"github.com/codebymuri/DeFiYield/internal/modules/settings"
)

// Service guards the settings and role registries behind owner authorization
type Service struct {
	settings *settings.Repository
	registry *registry.Repository
	auth     domain.AuthRegistry
	clock    domain.Clock
	recorder *events.Recorder

	log zerolog.Logger
}

// NewService creates a new admin service
func NewService(
	settingsRepo *settings.Repository,
	registryRepo *registry.Repository,
	auth domain.AuthRegistry,
	clock domain.Clock,
	recorder *events.Recorder,
	log zerolog.Logger,
) *Service {
	return &Service{
		settings: settingsRepo,
		registry: registryRepo,
		auth:     auth,
		clock:    clock,
		recorder: recorder,
		log:      log.With().Str("service", "admin").Logger(),
	}
}

func (s *Service) requireOwner(caller string) error {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if !isOwner {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) setSetting(caller, key, value string) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.settings.Set(key, value, now); err != nil {
		return err
	}

	s.recorder.Record(events.Event{
		Operation:   events.SettingChanged,
		Actor:       caller,
		LogicalTime: now,
		Details:     map[string]interface{}{"setting": key, "value": value},
	})
	s.log.Info().Str("setting", key).Str("value", value).Msg("Setting changed")
	return nil
}

// SetPaused flips the global pause flag. While paused, deposits and
// rebalancing are blocked; withdrawals and claims stay available so holders
// can always exit.
func (s *Service) SetPaused(caller string, paused bool) error {
	return s.setSetting(caller, settings.KeyPaused, strconv.FormatBool(paused))
}

// SetCooldown sets the minimum interval between rebalance executions
func (s *Service) SetCooldown(caller string, seconds int64) error {
	if seconds < 0 {
		return domain.ErrInvalidAmount
	}
	return s.setSetting(caller, settings.KeyCooldownSeconds, strconv.FormatInt(seconds, 10))
}

// SetDriftThreshold sets the aggregate drift, in basis points, above which a
// rebalance is considered needed
func (s *Service) SetDriftThreshold(caller string, bps int64) error {
	if bps < 0 || bps > rebalancing.TotalBps {
		return domain.ErrInvalidAmount
	}
	return s.setSetting(caller, settings.KeyDriftThresholdBps, strconv.FormatInt(bps, 10))
}

// SetMaxSlippage sets the advisory slippage bound in basis points
func (s *Service) SetMaxSlippage(caller string, bps int64) error {
	if bps < 0 || bps > rebalancing.TotalBps {
		return domain.ErrInvalidAmount
	}
	return s.setSetting(caller, settings.KeyMaxSlippageBps, strconv.FormatInt(bps, 10))
}

// SetStrategy selects the active rebalancing strategy
func (s *Service) SetStrategy(caller, name string) error {
	if _, err := rebalancing.ParseStrategy(name); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidAllocation)
	}
	return s.setSetting(caller, settings.KeyStrategy, name)
}

// Settings returns every stored setting, with defaults filled in for keys
// never written
func (s *Service) Settings(caller string) (map[string]string, error) {
	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	return s.settings.GetAll()
}

// GrantRole adds an account to a role allow-list. Owner-only.
func (s *Service) GrantRole(caller, account, role string) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	switch role {
	case registry.RoleOwner, registry.RoleAgent, registry.RoleOracle:
	default:
		return fmt.Errorf("unknown role %q: %w", role, domain.ErrInvalidAmount)
	}

	now := s.clock.Now()
	if err := s.registry.Grant(account, role, now); err != nil {
		return err
	}
	s.log.Info().Str("account", account).Str("role", role).Msg("Role granted")
	return nil
}

// RevokeRole removes an account from a role allow-list. Owner-only.
func (s *Service) RevokeRole(caller, account, role string) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if err := s.registry.Revoke(account, role); err != nil {
		return err
	}
	s.log.Info().Str("account", account).Str("role", role).Msg("Role revoked")
	return nil
}

// Events returns the most recent event records, newest first
func (s *Service) Events(limit int) ([]events.Event, error) {
	return s.recorder.Recent(limit)
}
