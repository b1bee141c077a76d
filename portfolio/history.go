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
	"strings"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTicks is the number of points in a reconstructed series
const DefaultTicks = 30

// Interval is the spacing between points of a reconstructed series
type Interval string

const (
	IntervalDay   Interval = "DAY"
	IntervalWeek  Interval = "WEEK"
	IntervalMonth Interval = "MONTH"
	IntervalYear  Interval = "YEAR"
)

// ParseInterval accepts the interval names case-insensitively
func ParseInterval(s string) (Interval, error) {
	switch interval := Interval(strings.ToUpper(s)); interval {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return interval, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInterval, s)
	}
}

// Back returns t moved n intervals into the past
func (i Interval) Back(t time.Time, n int) time.Time {
	return i.Forward(t, -n)
}

// Forward returns t moved n intervals into the future
func (i Interval) Forward(t time.Time, n int) time.Time {
	switch i {
	case IntervalWeek:
		return t.AddDate(0, 0, 7*n)
	case IntervalMonth:
		return addMonths(t, n)
	case IntervalYear:
		return addMonths(t, 12*n)
	default:
		return t.AddDate(0, 0, n)
	}
}

// addMonths moves t by n calendar months, clamping the day to the end of the target month
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, n, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	d := t.Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}

// Measure labels what a performance series reports
type Measure string

const (
	MeasureValuation Measure = "VALUATION"
	MeasureProfit    Measure = "PROFIT"
)

// ParseMeasure accepts the measure names case-insensitively
func ParseMeasure(s string) (Measure, error) {
	switch measure := Measure(strings.ToUpper(s)); measure {
	case MeasureValuation, MeasureProfit:
		return measure, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMeasure, s)
	}
}

// Point is the valuation of a portfolio at a moment
type Point struct {
	Time      time.Time `json:"time"`
	Valuation float64   `json:"valuation"`
}

// ReturnPoint is the percent return of a portfolio over the interval starting at Date
type ReturnPoint struct {
	Date    time.Time `json:"date"`
	Returns float64   `json:"portfolioReturns"`
}

// Reconstructor rebuilds the value of a user's portfolio history by finding the version
// that was in effect at each tick
type Reconstructor struct {
	catalog Catalog
	ticks   int
}

func NewReconstructor(catalog Catalog, ticks int) *Reconstructor {
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	return &Reconstructor{
		catalog: catalog,
		ticks:   ticks,
	}
}

// tickFunc computes one point for the version in effect at target
type tickFunc func(ctx context.Context, version *Portfolio, assets map[int]*data.Asset, target time.Time) error

// walk visits tick 1..ticks moving backwards from end. Starting at versions[idx] it
// advances to the newest version created at or before each target and stops once the
// history is exhausted.
func (r *Reconstructor) walk(ctx context.Context, versions Versions, idx int, end time.Time, interval Interval, fn tickFunc) error {
	if err := versions.Validate(); err != nil {
		return err
	}

	steps := 0
	limit := r.ticks + len(versions)
	for tick := 1; tick <= r.ticks; tick++ {
		target := interval.Back(end, tick)
		for idx < len(versions) && versions[idx].CreatedAt.After(target) {
			idx++
			steps++
			if steps > limit {
				return ErrWalkLimitExceeded
			}
		}
		if idx >= len(versions) {
			break
		}
		steps++
		if steps > limit {
			return ErrWalkLimitExceeded
		}

		version := versions[idx]
		assets, err := r.catalog.AssetsByID(ctx, version.AssetIDs())
		if err != nil {
			return err
		}
		if err := fn(ctx, version, assetMap(assets), target); err != nil {
			return err
		}
	}
	return nil
}

// ValuationSeries values the user's history at each tick, oldest first
func (r *Reconstructor) ValuationSeries(ctx context.Context, versions Versions, idx int, end time.Time, interval Interval) ([]Point, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.ValuationSeries")
	defer span.End()
	span.SetAttributes(attribute.String("Interval", string(interval)), attribute.Int("Versions", len(versions)))

	rate, err := r.catalog.RecentExchangeRate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange rate unavailable")
		return nil, err
	}
	valuer := NewValuer(r.catalog, rate, FallbackPrices)

	points := make([]Point, 0, r.ticks)
	err = r.walk(ctx, versions, idx, end, interval, func(ctx context.Context, version *Portfolio, assets map[int]*data.Asset, target time.Time) error {
		val, err := valuer.Value(ctx, version.Holdings, assets, target)
		if err != nil {
			return err
		}
		points = append(points, Point{Time: target, Valuation: val})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "valuation series failed")
		log.Error().Stack().Err(err).Str("Interval", string(interval)).Msg("could not reconstruct valuation series")
		return nil, err
	}

	reverse(points)
	return points, nil
}

// ReturnSeries reports the percent change of each tick's version over the following
// interval, oldest first
func (r *Reconstructor) ReturnSeries(ctx context.Context, versions Versions, idx int, end time.Time, interval Interval) ([]ReturnPoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.ReturnSeries")
	defer span.End()
	span.SetAttributes(attribute.String("Interval", string(interval)), attribute.Int("Versions", len(versions)))

	rate, err := r.catalog.RecentExchangeRate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange rate unavailable")
		return nil, err
	}
	valuer := NewValuer(r.catalog, rate, FallbackPrices)

	points := make([]ReturnPoint, 0, r.ticks)
	err = r.walk(ctx, versions, idx, end, interval, func(ctx context.Context, version *Portfolio, assets map[int]*data.Asset, target time.Time) error {
		cur, err := valuer.Value(ctx, version.Holdings, assets, target)
		if err != nil {
			return err
		}
		next, err := valuer.Value(ctx, version.Holdings, assets, interval.Forward(target, 1))
		if err != nil {
			return err
		}
		ret, err := PercentChange(cur, next)
		if err != nil {
			return fmt.Errorf("%w: at %s", err, target.Format("2006-01-02"))
		}
		points = append(points, ReturnPoint{Date: target, Returns: ret})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "return series failed")
		log.Error().Stack().Err(err).Str("Interval", string(interval)).Msg("could not reconstruct return series")
		return nil, err
	}

	reverse(points)
	return points, nil
}

// Backtest values a single version's holdings at ticks before end, oldest first
func (r *Reconstructor) Backtest(ctx context.Context, p *Portfolio, end time.Time, interval Interval) ([]Point, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Backtest")
	defer span.End()

	rate, err := r.catalog.RecentExchangeRate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange rate unavailable")
		return nil, err
	}

	assets, err := r.catalog.AssetsByID(ctx, p.AssetIDs())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assets unavailable")
		return nil, err
	}
	byID := assetMap(assets)
	valuer := NewValuer(r.catalog, rate, FallbackPrices)

	points := make([]Point, 0, r.ticks)
	for tick := r.ticks; tick >= 1; tick-- {
		target := interval.Back(end, tick)
		val, err := valuer.Value(ctx, p.Holdings, byID, target)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backtest valuation failed")
			return nil, err
		}
		points = append(points, Point{Time: target, Valuation: val})
	}
	return points, nil
}

// PercentChange returns (next-cur)/cur*100 or a division by zero error when cur is 0
func PercentChange(cur, next float64) (float64, error) {
	ratio, err := common.SafeDivide(next-cur, cur).Result()
	if err != nil {
		return 0, ErrZeroReferenceValue
	}
	return ratio * 100, nil
}

func reverse[T any](points []T) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}
