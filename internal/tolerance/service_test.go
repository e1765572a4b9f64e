package tolerance

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

type memoryRepo struct {
	rules  map[int64]Rule
	nextID int64
	hits   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rules: make(map[int64]Rule)}
}

func (r *memoryRepo) FindProductRule(ctx context.Context, scope shared.Scope, productID int64) (Rule, error) {
	r.hits++
	for _, rule := range r.rules {
		if rule.Level == LevelProduct && rule.ProductID != nil && *rule.ProductID == productID && rule.IsActive {
			return rule, nil
		}
	}
	return Rule{}, ErrRuleNotFound
}

func (r *memoryRepo) FindCategoryRule(ctx context.Context, scope shared.Scope, categoryName string) (Rule, error) {
	for _, rule := range r.rules {
		if rule.Level == LevelCategory && rule.CategoryName != nil && *rule.CategoryName == categoryName && rule.IsActive {
			return rule, nil
		}
	}
	return Rule{}, ErrRuleNotFound
}

func (r *memoryRepo) FindCompanyRule(ctx context.Context, scope shared.Scope) (Rule, error) {
	for _, rule := range r.rules {
		if rule.Level == LevelCompany && rule.IsActive {
			return rule, nil
		}
	}
	return Rule{}, ErrRuleNotFound
}

func (r *memoryRepo) Insert(ctx context.Context, rule Rule) (int64, error) {
	r.nextID++
	rule.ID = r.nextID
	r.rules[rule.ID] = rule
	return rule.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, scope shared.Scope, rule Rule) error {
	if _, ok := r.rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, scope shared.Scope, ruleID int64) error {
	if _, ok := r.rules[ruleID]; !ok {
		return ErrRuleNotFound
	}
	delete(r.rules, ruleID)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, scope shared.Scope) ([]Rule, error) {
	var out []Rule
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, scope shared.Scope, ruleID int64) (Rule, error) {
	if rule, ok := r.rules[ruleID]; ok {
		return rule, nil
	}
	return Rule{}, ErrRuleNotFound
}

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func testCache(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestResolvePrecedence(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 0, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCompany, OverPct: 5, UnderPct: 5, IsActive: true,
	})
	require.NoError(t, err)
	_, err = svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCategory, CategoryName: strPtr("beverages"),
		OverPct: 10, UnderPct: 10, IsActive: true,
	})
	require.NoError(t, err)
	_, err = svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelProduct, ProductID: int64Ptr(7),
		OverPct: 0, UnderPct: 20, IsActive: true,
	})
	require.NoError(t, err)

	// The product rule wins whole even where the company rule is looser.
	resolved, err := svc.Resolve(ctx, testScope, 7, "beverages")
	require.NoError(t, err)
	require.Equal(t, LevelProduct, resolved.Source)
	require.InDelta(t, 0, resolved.OverPct, 1e-9)
	require.InDelta(t, 20, resolved.UnderPct, 1e-9)

	// No product rule falls to the category level.
	resolved, err = svc.Resolve(ctx, testScope, 8, "beverages")
	require.NoError(t, err)
	require.Equal(t, LevelCategory, resolved.Source)
	require.InDelta(t, 10, resolved.OverPct, 1e-9)

	// No category match falls to the company level.
	resolved, err = svc.Resolve(ctx, testScope, 8, "snacks")
	require.NoError(t, err)
	require.Equal(t, LevelCompany, resolved.Source)
	require.InDelta(t, 5, resolved.OverPct, 1e-9)
}

func TestResolveIgnoresInactiveRules(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 0, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelProduct, ProductID: int64Ptr(7),
		OverPct: 0, UnderPct: 20, IsActive: false,
	})
	require.NoError(t, err)
	_, err = svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCompany, OverPct: 5, UnderPct: 5, IsActive: true,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, testScope, 7, "")
	require.NoError(t, err)
	require.Equal(t, LevelCompany, resolved.Source)
	require.InDelta(t, 5, resolved.OverPct, 1e-9)
}

func TestResolveCarriesUnlimitedOver(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 0, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelProduct, ProductID: int64Ptr(7),
		OverPct: 0, UnderPct: 10, UnlimitedOver: true, IsActive: true,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, testScope, 7, "")
	require.NoError(t, err)
	require.True(t, resolved.UnlimitedOver)
	require.Equal(t, LevelProduct, resolved.Source)
}

func TestResolveDefaultsToStrict(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 0, nil)

	resolved, err := svc.Resolve(context.Background(), testScope, 7, "beverages")
	require.NoError(t, err)
	require.Equal(t, Strict, resolved)
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCache(t), 0, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCompany, OverPct: 5, UnderPct: 5, IsActive: true,
	})
	require.NoError(t, err)

	first, err := svc.Resolve(ctx, testScope, 7, "")
	require.NoError(t, err)
	require.Equal(t, LevelCompany, first.Source)
	hitsAfterFirst := repo.hits

	// Second resolve comes from redis.
	second, err := svc.Resolve(ctx, testScope, 7, "")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, hitsAfterFirst, repo.hits)

	// A new product rule invalidates the cached resolution.
	rule, err := svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelProduct, ProductID: int64Ptr(7),
		OverPct: 1, UnderPct: 1, IsActive: true,
	})
	require.NoError(t, err)

	third, err := svc.Resolve(ctx, testScope, 7, "")
	require.NoError(t, err)
	require.Equal(t, LevelProduct, third.Source)

	// Deleting the product rule falls back to the company level again.
	require.NoError(t, svc.DeleteRule(ctx, testScope, rule.ID))
	fourth, err := svc.Resolve(ctx, testScope, 7, "")
	require.NoError(t, err)
	require.Equal(t, LevelCompany, fourth.Source)
}

func TestRuleDiscriminatorValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 0, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelProduct, IsActive: true,
	})
	require.ErrorIs(t, err, ErrDiscriminatorMismatch)

	_, err = svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCompany, ProductID: int64Ptr(7), IsActive: true,
	})
	require.ErrorIs(t, err, ErrDiscriminatorMismatch)

	_, err = svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCategory, ProductID: int64Ptr(7),
		CategoryName: strPtr("beverages"), IsActive: true,
	})
	require.ErrorIs(t, err, ErrDiscriminatorMismatch)

	_, err = svc.CreateRule(ctx, RuleInput{
		Scope: testScope, Level: LevelCompany, OverPct: -1, IsActive: true,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
