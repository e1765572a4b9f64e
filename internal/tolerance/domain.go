package tolerance

import (
	"fmt"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Level is the discriminator for a tolerance rule.
type Level string

const (
	LevelProduct  Level = "PRODUCT"
	LevelCategory Level = "CATEGORY"
	LevelCompany  Level = "COMPANY"
)

// IsValid checks if the level is valid.
func (l Level) IsValid() bool {
	return l == LevelProduct || l == LevelCategory || l == LevelCompany
}

// Rule is one delivery tolerance setting. Exactly one of ProductID or
// CategoryName is set for the PRODUCT and CATEGORY levels; both stay nil
// at the COMPANY level.
type Rule struct {
	ID            int64   `json:"id"`
	TenantID      int64   `json:"tenant_id"`
	CompanyID     int64   `json:"company_id"`
	Level         Level   `json:"level"`
	ProductID     *int64  `json:"product_id,omitempty"`
	CategoryName  *string `json:"category_name,omitempty"`
	OverPct       float64 `json:"over_pct"`
	UnderPct      float64 `json:"under_pct"`
	UnlimitedOver bool    `json:"unlimited_over"`
	IsActive      bool    `json:"is_active"`
}

// Resolved is the tolerance that applies to one receipt line. The most
// specific active rule wins whole; percentages never mix across levels.
type Resolved struct {
	OverPct       float64 `json:"over_pct"`
	UnderPct      float64 `json:"under_pct"`
	UnlimitedOver bool    `json:"unlimited_over"`
	Source        Level   `json:"source"`
}

// Strict is the fallback when no rule matches: exact quantities only.
var Strict = Resolved{OverPct: 0, UnderPct: 0, Source: ""}

// RuleInput creates or updates a rule.
type RuleInput struct {
	Scope         shared.Scope
	Level         Level
	ProductID     *int64
	CategoryName  *string
	OverPct       float64
	UnderPct      float64
	UnlimitedOver bool
	IsActive      bool
}

var (
	// ErrRuleNotFound indicates a missing rule in scope.
	ErrRuleNotFound = fmt.Errorf("tolerance: rule not found: %w", shared.ErrNotFound)
	// ErrDiscriminatorMismatch indicates a level and discriminator combination that is not representable.
	ErrDiscriminatorMismatch = fmt.Errorf("tolerance: level and discriminator do not match: %w", shared.ErrValidation)
	// ErrDuplicateRule indicates a second rule for the same level and discriminator.
	ErrDuplicateRule = fmt.Errorf("tolerance: rule already exists for this level and target: %w", shared.ErrConflict)
)
