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
	"github.com/rs/zerolog"
)

func (h Holding) MarshalZerologObject(e *zerolog.Event) {
	e.Int("AssetID", h.AssetID).Str("Code", h.Code).Int("Quantity", h.Quantity).Float64("PurchaseAmount", h.PurchaseAmount)
}

func (perf Performance) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("ExpectedReturn", perf.ExpectedReturn).
		Float64("Volatility", perf.Volatility).
		Float64("SharpeRatio", perf.SharpeRatio).
		Float64("Valuation", perf.Valuation)
}

type holdingArray []Holding

func (arr holdingArray) MarshalZerologArray(a *zerolog.Array) {
	for _, h := range arr {
		a.Object(h)
	}
}

func (p *Portfolio) MarshalZerologObject(e *zerolog.Event) {
	e.Str("PortfolioID", p.ID).
		Int("UserID", p.UserID).
		Int("Version", p.Version).
		Str("Name", p.Name).
		Bool("IsActive", p.IsActive).
		Time("CreatedAt", p.CreatedAt).
		Array("Holdings", holdingArray(p.Holdings)).
		Floats64("Weights", p.Weights).
		Object("FictionalPerformance", p.FictionalPerformance).
		Object("ActualPerformance", p.ActualPerformance)
	if p.DeletedAt != nil {
		e.Time("DeletedAt", *p.DeletedAt)
	}
}
