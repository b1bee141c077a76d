// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
)

var (
	ErrPortfolioNotFound  = fmt.Errorf("portfolio %w", common.ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("portfolio version %w", common.ErrNotFound)
	ErrNoActivePortfolio  = fmt.Errorf("active portfolio %w", common.ErrNotFound)
	ErrBoundsMismatch     = fmt.Errorf("asset ids and bounds must have equal length: %w", common.ErrInvalidParameter)
	ErrEmptyAssets        = fmt.Errorf("at least one asset is required: %w", common.ErrInvalidParameter)
	ErrInvalidCash        = fmt.Errorf("total cash must be positive: %w", common.ErrInvalidParameter)
	ErrUnknownInterval    = fmt.Errorf("unknown time interval: %w", common.ErrInvalidParameter)
	ErrUnknownMeasure     = fmt.Errorf("unknown measure: %w", common.ErrInvalidParameter)
	ErrVersionOrder       = fmt.Errorf("portfolio version numbers must decrease newest first: %w", common.ErrDataIntegrity)
	ErrMultipleActive     = fmt.Errorf("more than one active portfolio version: %w", common.ErrDataIntegrity)
	ErrActiveNotNewest    = fmt.Errorf("active portfolio is not the newest version: %w", common.ErrDataIntegrity)
	ErrWalkLimitExceeded  = fmt.Errorf("version walk did not terminate: %w", common.ErrDataIntegrity)
	ErrMissingReturn      = fmt.Errorf("asset has no expected return: %w", common.ErrInsufficientHistory)
	ErrZeroReferenceValue = fmt.Errorf("reference valuation is zero: %w", common.ErrDivisionByZero)
)

// Holding is the number of shares of an asset held by a portfolio version
type Holding struct {
	AssetID        int     `json:"assetId"`
	Code           string  `json:"code"`
	Quantity       int     `json:"totalPurchaseQuantity"`
	PurchaseAmount float64 `json:"totalPurchaseAmount"`
}

// Performance holds the statistics of a weighting. Volatility is the quadratic form of
// the weights with the covariance matrix.
type Performance struct {
	ExpectedReturn float64 `json:"expectedReturn"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpeRatio"`
	Valuation      float64 `json:"valuation"`
}

// FrontierPoint is a single point on the efficient frontier returned by the solver
type FrontierPoint struct {
	ExpectedReturn float64 `json:"expectedReturn"`
	Volatility     float64 `json:"volatility"`
}

// Portfolio is one version of a user's portfolio. Versions are append-only; creating a
// new version supersedes the active one.
type Portfolio struct {
	ID                   string          `json:"id"`
	UserID               int             `json:"userId"`
	Version              int             `json:"version"`
	Name                 string          `json:"name"`
	Holdings             []Holding       `json:"asset"`
	LowerBounds          []float64       `json:"lowerBounds"`
	UpperBounds          []float64       `json:"upperBounds"`
	ExactProportion      []float64       `json:"exactProportion,omitempty"`
	Weights              []float64       `json:"weights"`
	FictionalPerformance Performance     `json:"fictionalPerformance"`
	ActualPerformance    Performance     `json:"actualPerformance"`
	FrontierPoints       []FrontierPoint `json:"frontierPoints"`
	TotalCash            float64         `json:"totalCash"`
	CreatedAt            time.Time       `json:"createdAt"`
	DeletedAt            *time.Time      `json:"deletedAt"`
	IsActive             bool            `json:"isActive"`
}

// NewID returns a fresh portfolio identifier
func NewID() string {
	return uuid.New().String()
}

// AssetIDs returns the ids of the held assets in holding order
func (p *Portfolio) AssetIDs() []int {
	ids := make([]int, len(p.Holdings))
	for idx, holding := range p.Holdings {
		ids[idx] = holding.AssetID
	}
	return ids
}

// Validate checks the per-asset slices line up with the holdings
func (p *Portfolio) Validate() error {
	if len(p.Holdings) == 0 {
		return ErrEmptyAssets
	}
	n := len(p.Holdings)
	if len(p.LowerBounds) != n || len(p.UpperBounds) != n || len(p.Weights) != n {
		return ErrBoundsMismatch
	}
	if len(p.ExactProportion) != 0 && len(p.ExactProportion) != n {
		return ErrBoundsMismatch
	}
	return nil
}

// EndDate is the last day the version was in effect: today's midnight for the active
// version and the supersede time otherwise
func (p *Portfolio) EndDate(now time.Time) time.Time {
	if p.IsActive || p.DeletedAt == nil {
		return common.Midnight(now)
	}
	return *p.DeletedAt
}

// assetMap indexes assets by id
func assetMap(assets []*data.Asset) map[int]*data.Asset {
	m := make(map[int]*data.Asset, len(assets))
	for _, asset := range assets {
		m[asset.ID] = asset
	}
	return m
}
