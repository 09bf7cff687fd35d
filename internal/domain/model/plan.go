package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
)

// PlanName is the tier identifier. Exactly one plan exists per name.
type PlanName string

const (
	PlanFree PlanName = "free"
	PlanPro  PlanName = "pro"
)

// Plan is a subscription tier with per-period usage quotas. Plans are seeded
// once at setup time and are effectively immutable afterwards.
type Plan struct {
	ID                string
	Name              PlanName
	DisplayName       string
	PriceCheckLimit   int // price checks allowed per billing period
	PostCreationLimit int // posts allowed per billing period
	PriceUSD          decimal.Decimal
	CreatedAt         time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// IsFree reports whether this is the unpaid tier.
func (p *Plan) IsFree() bool { return p != nil && p.Name == PlanFree }

// NewPlan validates and constructs a plan.
func NewPlan(id string, name PlanName, displayName string, priceCheckLimit, postCreationLimit int, priceUSD decimal.Decimal) (*Plan, error) {
	if id == "" || displayName == "" || priceCheckLimit < 0 || postCreationLimit < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if name != PlanFree && name != PlanPro {
		return nil, domain.ErrInvalidArgument
	}
	if priceUSD.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:                id,
		Name:              name,
		DisplayName:       displayName,
		PriceCheckLimit:   priceCheckLimit,
		PostCreationLimit: postCreationLimit,
		PriceUSD:          priceUSD,
		CreatedAt:         time.Now(),
	}, nil
}
