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
	"time"

	"github.com/mutualrisk/mr-api/data"
)

// RiskRank places a portfolio's Sharpe ratio among the assets of one market category
type RiskRank struct {
	Total int `json:"total"`
	Rank  int `json:"rank"`
}

// Summary reports the valuation and risk ranking of one portfolio version
type Summary struct {
	CreatedAt     time.Time           `json:"createdAt"`
	CurValuation  float64             `json:"curValuation"`
	LastValuation *float64            `json:"lastValuation"`
	InitValuation float64             `json:"initValuation"`
	SharpeRatio   float64             `json:"sharpeRatio"`
	CategoryRanks map[string]RiskRank `json:"categoryRanks"`
}

var rankCategories = []string{
	data.CategoryKRX,
	data.CategoryKRXETF,
	data.CategoryNASDAQ,
	data.CategoryNASDAQETF,
}

// RankSharpe ranks sharpe within each market category. Assets without a volatility are
// not counted. Every category appears in the result even when it has no assets.
func RankSharpe(assets []*data.Asset, sharpe float64) map[string]RiskRank {
	ranks := make(map[string]RiskRank, len(rankCategories))
	for _, category := range rankCategories {
		ranks[category] = RiskRank{Rank: 1}
	}

	for _, asset := range assets {
		if asset.Volatility == nil {
			continue
		}
		category := asset.Category()
		rank := ranks[category]
		rank.Total++
		if *asset.Volatility < sharpe {
			rank.Rank++
		}
		ranks[category] = rank
	}
	return ranks
}
