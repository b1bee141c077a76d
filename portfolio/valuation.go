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
	"context"
	"fmt"
	"time"

	"github.com/mutualrisk/mr-api/data"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// PricePolicy decides what happens when an asset has no price within the lookback
// window
type PricePolicy int

const (
	// StrictPrices fails the valuation with an insufficient history error
	StrictPrices PricePolicy = iota

	// FallbackPrices substitutes the oldest recorded price of the asset
	FallbackPrices
)

// Valuer values holdings at a point in time. The exchange rate is captured when the
// valuer is created and applied to every valuation it performs.
type Valuer struct {
	prices    PriceHistory
	converter RegionConverter
	policy    PricePolicy
}

func NewValuer(prices PriceHistory, rate float64, policy PricePolicy) *Valuer {
	return &Valuer{
		prices:    prices,
		converter: RegionConverter{Rate: rate},
		policy:    policy,
	}
}

// Converter returns the region converter used by the valuer
func (v *Valuer) Converter() RegionConverter {
	return v.converter
}

// HoldingValues returns quantity x price x region factor for every holding, in holding
// order, using the price at or before asOf
func (v *Valuer) HoldingValues(ctx context.Context, holdings []Holding, assets map[int]*data.Asset, asOf time.Time) ([]float64, error) {
	ids := make([]int, len(holdings))
	for idx, holding := range holdings {
		ids[idx] = holding.AssetID
	}

	prices, err := v.prices.PricesAt(ctx, ids, asOf)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(holdings))
	for idx, holding := range holdings {
		asset, ok := assets[holding.AssetID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", data.ErrAssetNotFound, holding.AssetID)
		}

		price := 0.0
		if hist, ok := prices[holding.AssetID]; ok {
			price = hist.Price
		} else if v.policy == FallbackPrices {
			log.Debug().Int("AssetID", asset.ID).Time("AsOf", asOf).Float64("OldestPrice", asset.OldestPrice).Msg("no price in lookback window; using oldest price")
			price = asset.OldestPrice
		} else {
			return nil, fmt.Errorf("%w: asset %d at %s", data.ErrNoPriceHistory, holding.AssetID, asOf.Format("2006-01-02"))
		}

		values[idx] = v.converter.Convert(asset.Region, float64(holding.Quantity)*price)
	}
	return values, nil
}

// Value sums HoldingValues
func (v *Valuer) Value(ctx context.Context, holdings []Holding, assets map[int]*data.Asset, asOf time.Time) (float64, error) {
	values, err := v.HoldingValues(ctx, holdings, assets, asOf)
	if err != nil {
		return 0, err
	}
	return floats.Sum(values), nil
}

// CurrentValues values holdings at each asset's most recent price. An asset without a
// positive recent price follows the valuer's price policy.
func (v *Valuer) CurrentValues(holdings []Holding, assets map[int]*data.Asset) ([]float64, error) {
	values := make([]float64, len(holdings))
	for idx, holding := range holdings {
		asset, ok := assets[holding.AssetID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", data.ErrAssetNotFound, holding.AssetID)
		}

		price := asset.RecentPrice
		if price <= 0 {
			if v.policy != FallbackPrices {
				return nil, fmt.Errorf("%w: asset %d has no recent price", data.ErrNoPriceHistory, holding.AssetID)
			}
			log.Debug().Int("AssetID", asset.ID).Float64("OldestPrice", asset.OldestPrice).Msg("no recent price; using oldest price")
			price = asset.OldestPrice
		}

		values[idx] = v.converter.Convert(asset.Region, float64(holding.Quantity)*price)
	}
	return values, nil
}
