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
	"errors"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// Config tunes the read services
type Config struct {
	Ticks       int
	SolverYears int
}

// Service answers the portfolio queries of a single user
type Service struct {
	store       Store
	catalog     Catalog
	optimizer   Optimizer
	history     *Reconstructor
	solverYears int
	now         func() time.Time
}

func NewService(store Store, catalog Catalog, opt Optimizer, cfg Config) *Service {
	if cfg.SolverYears <= 0 {
		cfg.SolverYears = DefaultSolverYears
	}
	return &Service{
		store:       store,
		catalog:     catalog,
		optimizer:   opt,
		history:     NewReconstructor(catalog, cfg.Ticks),
		solverYears: cfg.SolverYears,
		now:         time.Now,
	}
}

// WithClock replaces the service's time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// VersionInfo is one entry of a user's portfolio list
type VersionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}

// AssetInfo describes one holding of a portfolio at current prices
type AssetInfo struct {
	AssetID         int         `json:"assetId"`
	Name            string      `json:"name"`
	Code            string      `json:"code"`
	Market          string      `json:"market"`
	Region          data.Region `json:"region"`
	RecentPrice     float64     `json:"recentPrice"`
	ExpectedReturn  *float64    `json:"expectedReturn"`
	DailyChange     float64     `json:"dailyPriceChange"`
	DailyChangeRate float64     `json:"dailyPriceChangeRate"`
	Weight          float64     `json:"weight"`
	Valuation       float64     `json:"valuation"`
	LowerBound      float64     `json:"lowerBound"`
	UpperBound      float64     `json:"upperBound"`
	ExactProportion *float64    `json:"exactProportion"`
}

// Detail is the current state of one portfolio
type Detail struct {
	HasPortfolio bool        `json:"hasPortfolio"`
	PortfolioID  string      `json:"portfolioId,omitempty"`
	Valuation    float64     `json:"valuation"`
	Assets       []AssetInfo `json:"assets,omitempty"`
}

// Frontier is the efficient frontier recorded when the portfolio was created
type Frontier struct {
	FrontierPoints       []FrontierPoint `json:"frontierPoints"`
	FictionalPerformance Performance     `json:"fictionalPerformance"`
}

// Series is a valuation time series, oldest first
type Series struct {
	PortfolioID  string   `json:"portfolioId"`
	Interval     Interval `json:"timeInterval"`
	Measure      Measure  `json:"measure"`
	Performances []Point  `json:"performances"`

	// Stats is only set for valuation series
	Stats *SeriesStats `json:"stats,omitempty"`
}

func newSeries(id string, interval Interval, measure Measure, points []Point) *Series {
	series := &Series{PortfolioID: id, Interval: interval, Measure: measure, Performances: points}
	if measure == MeasureValuation {
		series.Stats = Stats(points)
	}
	return series
}

// owned returns the portfolio with the given id if it belongs to userID
func (s *Service) owned(ctx context.Context, userID int, id string) (*Portfolio, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		log.Warn().Int("UserID", userID).Str("PortfolioID", id).Msg("portfolio requested by a user that does not own it")
		return nil, ErrPortfolioNotFound
	}
	return p, nil
}

// List returns every version of the user's portfolio, newest first
func (s *Service) List(ctx context.Context, userID int) ([]VersionInfo, error) {
	versions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	infos := make([]VersionInfo, len(versions))
	for idx, p := range versions {
		infos[idx] = VersionInfo{
			ID:        p.ID,
			Name:      p.Name,
			Version:   p.Version,
			CreatedAt: p.CreatedAt,
			IsActive:  p.IsActive,
		}
	}
	return infos, nil
}

// Detail returns the current valuation and holdings of a portfolio. An unknown id is
// not an error; HasPortfolio is false instead.
func (s *Service) Detail(ctx context.Context, userID int, id string) (*Detail, error) {
	p, err := s.owned(ctx, userID, id)
	if errors.Is(err, common.ErrNotFound) {
		return &Detail{HasPortfolio: false}, nil
	}
	if err != nil {
		return nil, err
	}

	infos, total, err := s.assetInfos(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Detail{
		HasPortfolio: true,
		PortfolioID:  p.ID,
		Valuation:    total,
		Assets:       infos,
	}, nil
}

// AssetInfos describes every holding of a portfolio at current prices
func (s *Service) AssetInfos(ctx context.Context, userID int, id string) ([]AssetInfo, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	infos, _, err := s.assetInfos(ctx, p)
	return infos, err
}

func (s *Service) assetInfos(ctx context.Context, p *Portfolio) ([]AssetInfo, float64, error) {
	assets, err := s.catalog.AssetsByID(ctx, p.AssetIDs())
	if err != nil {
		return nil, 0, err
	}
	byID := assetMap(assets)

	rate, err := s.catalog.RecentExchangeRate(ctx)
	if err != nil {
		return nil, 0, err
	}
	valuer := NewValuer(s.catalog, rate, StrictPrices)
	values, err := valuer.CurrentValues(p.Holdings, byID)
	if err != nil {
		return nil, 0, err
	}
	weights := Weights(values)

	now := s.now()
	infos := make([]AssetInfo, len(p.Holdings))
	for idx, holding := range p.Holdings {
		asset := byID[holding.AssetID]
		change, changeRate, err := s.dailyChange(ctx, asset.ID, now)
		if err != nil {
			return nil, 0, err
		}

		info := AssetInfo{
			AssetID:         asset.ID,
			Name:            asset.Name,
			Code:            asset.Code,
			Market:          asset.Market,
			Region:          asset.Region,
			RecentPrice:     asset.RecentPrice,
			ExpectedReturn:  asset.ExpectedReturn,
			DailyChange:     change,
			DailyChangeRate: changeRate,
			Weight:          weights[idx],
			Valuation:       values[idx],
		}
		if idx < len(p.LowerBounds) {
			info.LowerBound = p.LowerBounds[idx]
		}
		if idx < len(p.UpperBounds) {
			info.UpperBound = p.UpperBounds[idx]
		}
		if idx < len(p.ExactProportion) {
			exact := p.ExactProportion[idx]
			info.ExactProportion = &exact
		}
		infos[idx] = info
	}
	return infos, floats.Sum(values), nil
}

// dailyChange compares the two most recent closing prices of an asset. Both results are
// 0 when fewer than two trading dates are available.
func (s *Service) dailyChange(ctx context.Context, assetID int, now time.Time) (change, rate float64, err error) {
	dates, err := s.catalog.ValidDates(ctx, assetID, now, 2)
	if err != nil {
		return 0, 0, err
	}
	if len(dates) < 2 {
		return 0, 0, nil
	}

	latest, err := s.catalog.PricesAt(ctx, []int{assetID}, dates[0])
	if err != nil {
		return 0, 0, err
	}
	previous, err := s.catalog.PricesAt(ctx, []int{assetID}, dates[1])
	if err != nil {
		return 0, 0, err
	}

	cur, ok1 := latest[assetID]
	prev, ok2 := previous[assetID]
	if !ok1 || !ok2 {
		return 0, 0, nil
	}
	change = cur.Price - prev.Price
	return change, common.SafeDivide(change*100, prev.Price).OrZero(), nil
}

// Frontier returns the efficient frontier stored with the portfolio
func (s *Service) Frontier(ctx context.Context, userID int, id string) (*Frontier, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &Frontier{
		FrontierPoints:       p.FrontierPoints,
		FictionalPerformance: p.FictionalPerformance,
	}, nil
}

// Backtest values the selected version's holdings over the past ticks
func (s *Service) Backtest(ctx context.Context, userID int, id string, interval Interval, measure Measure) (*Series, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	points, err := s.history.Backtest(ctx, p, common.Midnight(s.now()), interval)
	if err != nil {
		return nil, err
	}
	return newSeries(p.ID, interval, measure, points), nil
}

// versionsFrom loads the user's history and locates the requested version in it
func (s *Service) versionsFrom(ctx context.Context, userID int, id string) (Versions, int, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, 0, err
	}
	versions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	idx := versions.IndexOf(id)
	if idx < 0 {
		return nil, 0, ErrPortfolioNotFound
	}
	return versions, idx, nil
}

// HistoricalValuation values whichever version was in effect at each tick before the
// selected version's end date
func (s *Service) HistoricalValuation(ctx context.Context, userID int, id string, interval Interval, measure Measure) (*Series, error) {
	versions, idx, err := s.versionsFrom(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	end := versions[idx].EndDate(s.now())
	points, err := s.history.ValuationSeries(ctx, versions, idx, end, interval)
	if err != nil {
		return nil, err
	}
	return newSeries(id, interval, measure, points), nil
}

// HistoricalReturns reports per interval returns ending at the first day of the month
// the selected version ended in
func (s *Service) HistoricalReturns(ctx context.Context, userID int, id string, interval Interval) ([]ReturnPoint, error) {
	versions, idx, err := s.versionsFrom(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	end := versions[idx].EndDate(s.now())
	end = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	return s.history.ReturnSeries(ctx, versions, idx, end, interval)
}

// Sector groups the current value of a portfolio by sector
func (s *Service) Sector(ctx context.Context, userID int, id string) ([]SectorWeight, error) {
	if _, err := s.catalog.UserByID(ctx, userID); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	assets, err := s.catalog.AssetsByID(ctx, p.AssetIDs())
	if err != nil {
		return nil, err
	}
	byID := assetMap(assets)

	rate, err := s.catalog.RecentExchangeRate(ctx)
	if err != nil {
		return nil, err
	}
	values, err := NewValuer(s.catalog, rate, StrictPrices).CurrentValues(p.Holdings, byID)
	if err != nil {
		return nil, err
	}
	return SectorWeights(p.Holdings, values, byID), nil
}

// Summary reports valuations of a version at creation, supersession and today together
// with the rank of its Sharpe ratio in each market category
func (s *Service) Summary(ctx context.Context, userID, version int) (*Summary, error) {
	if _, err := s.catalog.UserByID(ctx, userID); err != nil {
		return nil, err
	}
	p, err := s.store.GetByUserAndVersion(ctx, userID, version)
	if err != nil {
		return nil, err
	}

	assets, err := s.catalog.AssetsByID(ctx, p.AssetIDs())
	if err != nil {
		return nil, err
	}
	byID := assetMap(assets)

	rate, err := s.catalog.RecentExchangeRate(ctx)
	if err != nil {
		return nil, err
	}
	valuer := NewValuer(s.catalog, rate, StrictPrices)

	current, err := valuer.CurrentValues(p.Holdings, byID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		CreatedAt:    p.CreatedAt,
		CurValuation: floats.Sum(current),
		SharpeRatio:  p.FictionalPerformance.SharpeRatio,
	}

	if !p.IsActive && p.DeletedAt != nil {
		last, err := valuer.Value(ctx, p.Holdings, byID, *p.DeletedAt)
		if err != nil {
			return nil, err
		}
		summary.LastValuation = &last
	}

	if summary.InitValuation, err = valuer.Value(ctx, p.Holdings, byID, p.CreatedAt); err != nil {
		return nil, err
	}

	all, err := s.catalog.AllAssets(ctx)
	if err != nil {
		return nil, err
	}
	summary.CategoryRanks = RankSharpe(all, summary.SharpeRatio)
	return summary, nil
}
