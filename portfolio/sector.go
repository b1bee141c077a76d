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
	"sort"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
)

// SectorWeight is the share of a portfolio's current value held in one sector
type SectorWeight struct {
	Name    string   `json:"name"`
	Weight  float64  `json:"weight"`
	Value   float64  `json:"valuation"`
	Members []string `json:"assets"`
}

// SectorWeights groups the current values of holdings by sector. Weights are percent
// of the portfolio total and are all zero when the total is zero. The result is
// ordered by weight, largest first.
func SectorWeights(holdings []Holding, values []float64, assets map[int]*data.Asset) []SectorWeight {
	bySector := make(map[string]*SectorWeight)
	total := 0.0
	for idx, holding := range holdings {
		asset, ok := assets[holding.AssetID]
		if !ok || idx >= len(values) {
			continue
		}
		name := asset.SectorName
		if name == "" {
			name = "Unknown"
		}
		sw, ok := bySector[name]
		if !ok {
			sw = &SectorWeight{Name: name}
			bySector[name] = sw
		}
		sw.Value += values[idx]
		sw.Members = append(sw.Members, asset.Code)
		total += values[idx]
	}

	sectors := make([]SectorWeight, 0, len(bySector))
	for _, sw := range bySector {
		sw.Weight = common.SafeDivide(sw.Value*100, total).OrZero()
		sectors = append(sectors, *sw)
	}

	sort.Slice(sectors, func(i, j int) bool {
		if sectors[i].Weight != sectors[j].Weight {
			return sectors[i].Weight > sectors[j].Weight
		}
		return sectors[i].Name < sectors[j].Name
	})
	return sectors
}
