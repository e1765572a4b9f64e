package tolerance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	FindProductRule(ctx context.Context, scope shared.Scope, productID int64) (Rule, error)
	FindCategoryRule(ctx context.Context, scope shared.Scope, categoryName string) (Rule, error)
	FindCompanyRule(ctx context.Context, scope shared.Scope) (Rule, error)
	Insert(ctx context.Context, r Rule) (int64, error)
	Update(ctx context.Context, scope shared.Scope, r Rule) error
	Delete(ctx context.Context, scope shared.Scope, ruleID int64) error
	List(ctx context.Context, scope shared.Scope) ([]Rule, error)
	Get(ctx context.Context, scope shared.Scope, ruleID int64) (Rule, error)
}

const defaultCacheTTL = 5 * time.Minute

// Service resolves delivery tolerances with PRODUCT > CATEGORY > COMPANY
// precedence. Resolutions are cached in redis; the singleflight group
// keeps a cold key from stampeding the database.
type Service struct {
	repo   RepositoryPort
	cache  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds Service. Cache may be nil; resolution then always
// hits the database. A non-positive ttl falls back to the default.
func NewService(repo RepositoryPort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(scope shared.Scope, productID int64, categoryName string) string {
	return fmt.Sprintf("tol:%d:%d:%d:%s", scope.TenantID, scope.CompanyID, productID, categoryName)
}

func scopePrefix(scope shared.Scope) string {
	return fmt.Sprintf("tol:%d:%d:", scope.TenantID, scope.CompanyID)
}

// Resolve returns the tolerance applying to a product. A matching rule at
// a more specific level wins even when its percentages are stricter than
// a broader one; inactive rules are invisible.
func (s *Service) Resolve(ctx context.Context, scope shared.Scope, productID int64, categoryName string) (Resolved, error) {
	if err := scope.Validate(); err != nil {
		return Resolved{}, err
	}
	if productID == 0 {
		return Resolved{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}

	key := cacheKey(scope, productID, categoryName)
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var cached Resolved
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("tolerance cache read failed", slog.Any("error", err))
		}
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		resolved, err := s.resolve(ctx, scope, productID, categoryName)
		if err != nil {
			return Resolved{}, err
		}
		if s.cache != nil {
			if raw, jsonErr := json.Marshal(resolved); jsonErr == nil {
				if setErr := s.cache.Set(ctx, key, raw, s.ttl).Err(); setErr != nil {
					s.logger.Warn("tolerance cache write failed", slog.Any("error", setErr))
				}
			}
		}
		return resolved, nil
	})
	if err != nil {
		return Resolved{}, err
	}
	return value.(Resolved), nil
}

func (s *Service) resolve(ctx context.Context, scope shared.Scope, productID int64, categoryName string) (Resolved, error) {
	rule, err := s.repo.FindProductRule(ctx, scope, productID)
	if err == nil {
		return Resolved{OverPct: rule.OverPct, UnderPct: rule.UnderPct, UnlimitedOver: rule.UnlimitedOver, Source: LevelProduct}, nil
	}
	if !errors.Is(err, ErrRuleNotFound) {
		return Resolved{}, err
	}
	if categoryName != "" {
		rule, err = s.repo.FindCategoryRule(ctx, scope, categoryName)
		if err == nil {
			return Resolved{OverPct: rule.OverPct, UnderPct: rule.UnderPct, UnlimitedOver: rule.UnlimitedOver, Source: LevelCategory}, nil
		}
		if !errors.Is(err, ErrRuleNotFound) {
			return Resolved{}, err
		}
	}
	rule, err = s.repo.FindCompanyRule(ctx, scope)
	if err == nil {
		return Resolved{OverPct: rule.OverPct, UnderPct: rule.UnderPct, UnlimitedOver: rule.UnlimitedOver, Source: LevelCompany}, nil
	}
	if !errors.Is(err, ErrRuleNotFound) {
		return Resolved{}, err
	}
	return Strict, nil
}

func validateInput(input RuleInput) error {
	if err := input.Scope.Validate(); err != nil {
		return err
	}
	if !input.Level.IsValid() {
		return fmt.Errorf("%w: unknown level %q", shared.ErrValidation, input.Level)
	}
	switch input.Level {
	case LevelProduct:
		if input.ProductID == nil || input.CategoryName != nil {
			return ErrDiscriminatorMismatch
		}
	case LevelCategory:
		if input.CategoryName == nil || input.ProductID != nil {
			return ErrDiscriminatorMismatch
		}
	case LevelCompany:
		if input.ProductID != nil || input.CategoryName != nil {
			return ErrDiscriminatorMismatch
		}
	}
	if input.OverPct < 0 || input.UnderPct < 0 {
		return fmt.Errorf("%w: tolerance percentages must be >= 0", shared.ErrValidation)
	}
	return nil
}

// CreateRule stores a new rule and drops cached resolutions in scope.
func (s *Service) CreateRule(ctx context.Context, input RuleInput) (Rule, error) {
	if err := validateInput(input); err != nil {
		return Rule{}, err
	}
	rule := Rule{
		TenantID:      input.Scope.TenantID,
		CompanyID:     input.Scope.CompanyID,
		Level:         input.Level,
		ProductID:     input.ProductID,
		CategoryName:  input.CategoryName,
		OverPct:       input.OverPct,
		UnderPct:      input.UnderPct,
		UnlimitedOver: input.UnlimitedOver,
		IsActive:      input.IsActive,
	}
	id, err := s.repo.Insert(ctx, rule)
	if err != nil {
		return Rule{}, err
	}
	rule.ID = id
	s.invalidate(ctx, input.Scope)
	return rule, nil
}

// UpdateRule rewrites a rule and drops cached resolutions in scope.
func (s *Service) UpdateRule(ctx context.Context, ruleID int64, input RuleInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	rule := Rule{
		ID:            ruleID,
		TenantID:      input.Scope.TenantID,
		CompanyID:     input.Scope.CompanyID,
		Level:         input.Level,
		ProductID:     input.ProductID,
		CategoryName:  input.CategoryName,
		OverPct:       input.OverPct,
		UnderPct:      input.UnderPct,
		UnlimitedOver: input.UnlimitedOver,
		IsActive:      input.IsActive,
	}
	if err := s.repo.Update(ctx, input.Scope, rule); err != nil {
		return err
	}
	s.invalidate(ctx, input.Scope)
	return nil
}

// DeleteRule removes a rule and drops cached resolutions in scope.
func (s *Service) DeleteRule(ctx context.Context, scope shared.Scope, ruleID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, scope, ruleID); err != nil {
		return err
	}
	s.invalidate(ctx, scope)
	return nil
}

// GetRule fetches one rule.
func (s *Service) GetRule(ctx context.Context, scope shared.Scope, ruleID int64) (Rule, error) {
	if err := scope.Validate(); err != nil {
		return Rule{}, err
	}
	return s.repo.Get(ctx, scope, ruleID)
}

// ListRules lists all rules in scope.
func (s *Service) ListRules(ctx context.Context, scope shared.Scope) ([]Rule, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, scope)
}

// invalidate deletes every cached resolution for the scope.
func (s *Service) invalidate(ctx context.Context, scope shared.Scope) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, scopePrefix(scope)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("tolerance cache scan failed", slog.Any("error", err))
		return
	}
	if len(keys) > 0 {
		if err := s.cache.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("tolerance cache invalidation failed", slog.Any("error", err))
		}
	}
}
