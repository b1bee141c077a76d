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

package docstore

import (
	"fmt"
	"time"

	"github.com/mutualrisk/mr-api/portfolio"
)

const table = "portfolio"

// selectFields aliases portfolio_id to id so rows decode without the record id
const selectFields = "portfolio_id AS id, user_id, version, name, holdings, lower_bounds, upper_bounds, " +
	"exact_proportion, weights, fictional_performance, actual_performance, frontier_points, total_cash, " +
	"created_at, deleted_at, is_active"

// record is the stored shape of one portfolio version
type record struct {
	ID                   string                    `json:"id,omitempty"`
	PortfolioID          string                    `json:"portfolio_id,omitempty"`
	UserID               int                       `json:"user_id"`
	Version              int                       `json:"version"`
	Name                 string                    `json:"name"`
	Holdings             []portfolio.Holding       `json:"holdings"`
	LowerBounds          []float64                 `json:"lower_bounds"`
	UpperBounds          []float64                 `json:"upper_bounds"`
	ExactProportion      []float64                 `json:"exact_proportion"`
	Weights              []float64                 `json:"weights"`
	FictionalPerformance portfolio.Performance     `json:"fictional_performance"`
	ActualPerformance    portfolio.Performance     `json:"actual_performance"`
	FrontierPoints       []portfolio.FrontierPoint `json:"frontier_points"`
	TotalCash            float64                   `json:"total_cash"`
	CreatedAt            time.Time                 `json:"created_at"`
	DeletedAt            *time.Time                `json:"deleted_at"`
	IsActive             bool                      `json:"is_active"`
}

// recordKey is the record id of a user's version; a duplicate key fails the create
func recordKey(userID, version int) string {
	return fmt.Sprintf("%d_%d", userID, version)
}

func toRecord(p *portfolio.Portfolio) *record {
	return &record{
		PortfolioID:          p.ID,
		UserID:               p.UserID,
		Version:              p.Version,
		Name:                 p.Name,
		Holdings:             p.Holdings,
		LowerBounds:          p.LowerBounds,
		UpperBounds:          p.UpperBounds,
		ExactProportion:      p.ExactProportion,
		Weights:              p.Weights,
		FictionalPerformance: p.FictionalPerformance,
		ActualPerformance:    p.ActualPerformance,
		FrontierPoints:       p.FrontierPoints,
		TotalCash:            p.TotalCash,
		CreatedAt:            p.CreatedAt.UTC(),
		DeletedAt:            p.DeletedAt,
		IsActive:             p.IsActive,
	}
}

func (r *record) portfolio() *portfolio.Portfolio {
	id := r.ID
	if id == "" {
		id = r.PortfolioID
	}
	return &portfolio.Portfolio{
		ID:                   id,
		UserID:               r.UserID,
		Version:              r.Version,
		Name:                 r.Name,
		Holdings:             r.Holdings,
		LowerBounds:          r.LowerBounds,
		UpperBounds:          r.UpperBounds,
		ExactProportion:      r.ExactProportion,
		Weights:              r.Weights,
		FictionalPerformance: r.FictionalPerformance,
		ActualPerformance:    r.ActualPerformance,
		FrontierPoints:       r.FrontierPoints,
		TotalCash:            r.TotalCash,
		CreatedAt:            r.CreatedAt,
		DeletedAt:            r.DeletedAt,
		IsActive:             r.IsActive,
	}
}
