package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/madrasah-registration/internal/models"
	"github.com/noah-isme/madrasah-registration/pkg/config"
)

// DiscountPolicy is the process-wide sibling pricing rule. Amounts are minor currency units.
type DiscountPolicy struct {
	Threshold      int
	AmountOff      int64
	DurationMonths int
	Currency       string
}

// DiscountPolicyFromConfig builds the policy from pricing configuration.
func DiscountPolicyFromConfig(cfg config.PricingConfig) DiscountPolicy {
	return DiscountPolicy{
		Threshold:      cfg.SiblingThreshold,
		AmountOff:      cfg.DiscountAmountOff,
		DurationMonths: cfg.DiscountDurationMonths,
		Currency:       cfg.Currency,
	}
}

// ComputeDiscount decides whether siblingCount children qualify. The discount
// is flat: every count at or above the threshold gets the same per-child terms.
func (p DiscountPolicy) ComputeDiscount(siblingCount int) models.DiscountDecision {
	if p.Threshold <= 0 || siblingCount < p.Threshold || p.AmountOff <= 0 {
		return models.DiscountDecision{}
	}
	return models.DiscountDecision{
		Applies:        true,
		AmountOff:      p.AmountOff,
		DurationMonths: p.DurationMonths,
	}
}

// DefinitionID is the deterministic provider id for the discount covering
// members children of track. The per-child amount is multiplied by members
// because the provider applies an amount-off discount once per invoice. The
// currency is part of the id since an amount-off discount is bound to one.
func (p DiscountPolicy) DefinitionID(track models.ProgramTrack, decision models.DiscountDecision, members int) string {
	return fmt.Sprintf("sibling-%s-%s-%d-%dm-x%d", track, strings.ToLower(p.Currency), decision.AmountOff, decision.DurationMonths, members)
}
