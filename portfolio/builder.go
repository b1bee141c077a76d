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
	"strconv"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/dataframe"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/mutualrisk/mr-api/optimizer"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/floats"
)

// DefaultSolverYears is the amount of price history handed to the solver
const DefaultSolverYears = 2

var ErrBoundOutOfRange = fmt.Errorf("bounds must be fractions between 0 and 1 with lower <= upper: %w", common.ErrInvalidParameter)

// Request asks for an optimized allocation of TotalCash over AssetIDs. Bounds and
// exact proportions are fractions.
type Request struct {
	Name            string    `json:"name"`
	TotalCash       float64   `json:"totalCash"`
	AssetIDs        []int     `json:"assetIds"`
	LowerBounds     []float64 `json:"lower_bounds"`
	UpperBounds     []float64 `json:"upper_bounds"`
	ExactProportion []float64 `json:"exact_proportion,omitempty"`
}

// Validate checks the request before any data is loaded
func (r *Request) Validate() error {
	n := len(r.AssetIDs)
	if n == 0 {
		return ErrEmptyAssets
	}
	if r.TotalCash <= 0 {
		return ErrInvalidCash
	}
	if len(r.LowerBounds) != n || len(r.UpperBounds) != n {
		return ErrBoundsMismatch
	}
	if len(r.ExactProportion) != 0 && len(r.ExactProportion) != n {
		return ErrBoundsMismatch
	}
	for idx := range r.AssetIDs {
		lower, upper := r.LowerBounds[idx], r.UpperBounds[idx]
		if lower < 0 || upper > 1 || lower > upper {
			return ErrBoundOutOfRange
		}
	}
	for _, exact := range r.ExactProportion {
		if exact < 0 || exact > 1 {
			return ErrBoundOutOfRange
		}
	}
	return nil
}

// RecommendedAsset is one line of a proposed allocation
type RecommendedAsset struct {
	AssetID     int         `json:"assetId"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Region      data.Region `json:"region"`
	RecentPrice float64     `json:"recentPrice"`
	Weight      float64     `json:"weight"`
	RealWeight  float64     `json:"realWeight"`
	Quantity    int         `json:"totalPurchaseQuantity"`
	Valuation   float64     `json:"valuation"`
}

// Analysis is the solver's proposal together with the performance of the whole-share
// allocation that implements it
type Analysis struct {
	FictionalPerformance Performance        `json:"fictionalPerformance"`
	ActualPerformance    Performance        `json:"actualPerformance"`
	Assets               []RecommendedAsset `json:"assets"`
	FrontierPoints       []FrontierPoint    `json:"frontierPoints"`
	TotalValuation       float64            `json:"totalValuation"`
}

// solverRequest loads the assets of req in request order and builds the solver input
func (s *Service) solverRequest(ctx context.Context, req *Request) (*optimizer.Request, []*data.Asset, error) {
	assets, err := s.catalog.AssetsByID(ctx, req.AssetIDs)
	if err != nil {
		return nil, nil, err
	}

	expected := make([]float64, len(assets))
	for idx, asset := range assets {
		if asset.ExpectedReturn == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingReturn, asset.Code)
		}
		expected[idx] = *asset.ExpectedReturn
	}

	end := common.Midnight(s.now())
	begin := end.AddDate(-s.solverYears, 0, 0)
	histories, err := s.catalog.PricesBetween(ctx, req.AssetIDs, begin, end)
	if err != nil {
		return nil, nil, err
	}

	frames := make([]*dataframe.DataFrame, len(assets))
	for idx, asset := range assets {
		hist := histories[asset.ID]
		if len(hist) == 0 {
			return nil, nil, fmt.Errorf("%w: asset %s", data.ErrNoPriceHistory, asset.Code)
		}
		dates := make([]time.Time, len(hist))
		prices := make([]float64, len(hist))
		for ii, row := range hist {
			dates[ii] = row.Date
			prices[ii] = row.Price
		}
		frames[idx], err = dataframe.New(strconv.Itoa(asset.ID), dates, prices)
		if err != nil {
			return nil, nil, err
		}
	}

	joined := dataframe.InnerJoin(frames...)
	if joined.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: assets share no trading dates", data.ErrNoPriceHistory)
	}

	return &optimizer.Request{
		ExpectedReturns: expected,
		PricesDataFrame: joined.Vals,
		LowerBounds:     req.LowerBounds,
		UpperBounds:     req.UpperBounds,
		ExactProportion: req.ExactProportion,
	}, assets, nil
}

// ShareCount returns round(cash * weight / (price * factor)), or 0 when the converted
// price is zero
func ShareCount(cash, weight, price, factor float64) int {
	unit := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(factor))
	if unit.IsZero() {
		return 0
	}
	return int(decimal.NewFromFloat(cash).Mul(decimal.NewFromFloat(weight)).Div(unit).Round(0).IntPart())
}

// Analyze asks the solver for an allocation of req and converts it into whole shares
func (s *Service) Analyze(ctx context.Context, req *Request) (*Analysis, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("NumAssets", len(req.AssetIDs)), attribute.Float64("TotalCash", req.TotalCash))

	subLog := log.With().Ints("AssetIDs", req.AssetIDs).Float64("TotalCash", req.TotalCash).Logger()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	solverReq, assets, err := s.solverRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build solver request")
		subLog.Error().Stack().Err(err).Msg("could not build solver request")
		return nil, err
	}

	resp, err := s.optimizer.Optimize(ctx, solverReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solver failed")
		subLog.Error().Stack().Err(err).Msg("solver failed")
		return nil, err
	}

	fictional := Performance{
		ExpectedReturn: resp.FictionalPerformance.ExpectedReturn,
		Volatility:     resp.FictionalPerformance.Volatility,
	}
	if fictional.SharpeRatio, err = SharpeRatio(fictional.ExpectedReturn, fictional.Volatility); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solver volatility is zero")
		return nil, err
	}

	rate, err := s.catalog.RecentExchangeRate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange rate unavailable")
		return nil, err
	}
	converter := RegionConverter{Rate: rate}

	recommended := make([]RecommendedAsset, len(assets))
	values := make([]float64, len(assets))
	for idx, asset := range assets {
		factor := converter.Factor(asset.Region)
		count := ShareCount(req.TotalCash, resp.Weights[idx], asset.RecentPrice, factor)
		values[idx] = asset.RecentPrice * float64(count) * factor
		recommended[idx] = RecommendedAsset{
			AssetID:     asset.ID,
			Code:        asset.Code,
			Name:        asset.Name,
			Region:      asset.Region,
			RecentPrice: asset.RecentPrice,
			Weight:      resp.Weights[idx],
			Quantity:    count,
			Valuation:   values[idx],
		}
	}

	realWeights := Weights(values)
	for idx := range recommended {
		recommended[idx].RealWeight = realWeights[idx]
	}

	covariances, err := s.catalog.CovariancesAmong(ctx, req.AssetIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "covariances unavailable")
		return nil, err
	}

	actual, err := Evaluate(assets, realWeights, covariances)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not evaluate allocation")
		subLog.Error().Stack().Err(err).Msg("could not evaluate whole share allocation")
		return nil, err
	}
	total := floats.Sum(values)
	actual.Valuation = total
	fictional.Valuation = req.TotalCash

	frontier := make([]FrontierPoint, len(resp.FrontierPoints))
	for idx, pt := range resp.FrontierPoints {
		frontier[idx] = FrontierPoint{ExpectedReturn: pt.ExpectedReturn, Volatility: pt.Volatility}
	}

	return &Analysis{
		FictionalPerformance: fictional,
		ActualPerformance:    actual,
		Assets:               recommended,
		FrontierPoints:       frontier,
		TotalValuation:       total,
	}, nil
}

// Confirm analyzes req and stores the result as the user's new active portfolio
func (s *Service) Confirm(ctx context.Context, userID int, req *Request) (*Portfolio, error) {
	if _, err := s.catalog.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	analysis, err := s.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	holdings := make([]Holding, len(analysis.Assets))
	weights := make([]float64, len(analysis.Assets))
	for idx, asset := range analysis.Assets {
		holdings[idx] = Holding{
			AssetID:        asset.AssetID,
			Code:           asset.Code,
			Quantity:       asset.Quantity,
			PurchaseAmount: asset.Valuation,
		}
		weights[idx] = asset.RealWeight
	}

	p := &Portfolio{
		ID:                   NewID(),
		UserID:               userID,
		Name:                 req.Name,
		Holdings:             holdings,
		LowerBounds:          req.LowerBounds,
		UpperBounds:          req.UpperBounds,
		ExactProportion:      req.ExactProportion,
		Weights:              weights,
		FictionalPerformance: analysis.FictionalPerformance,
		ActualPerformance:    analysis.ActualPerformance,
		FrontierPoints:       analysis.FrontierPoints,
		TotalCash:            req.TotalCash,
		CreatedAt:            s.now(),
		IsActive:             true,
	}

	stored, err := s.store.Append(ctx, p)
	if err != nil {
		log.Error().Stack().Err(err).Int("UserID", userID).Str("PortfolioID", p.ID).Msg("could not store portfolio")
		return nil, err
	}
	log.Info().Object("Portfolio", stored).Msg("created portfolio version")
	return stored, nil
}
