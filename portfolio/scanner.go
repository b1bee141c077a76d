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
	"sync"
	"time"

	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ScanReport summarizes one rebalance scan
type ScanReport struct {
	Evaluated int           `json:"evaluated"`
	Skipped   int           `json:"skipped"`
	Flagged   int           `json:"flagged"`
	Notified  int           `json:"notified"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func (r *ScanReport) MarshalZerologObject(e *zerolog.Event) {
	e.Int("Evaluated", r.Evaluated).
		Int("Skipped", r.Skipped).
		Int("Flagged", r.Flagged).
		Int("Notified", r.Notified).
		Int("Failed", r.Failed).
		Dur("Duration", r.Duration)
}

type scanOutcome int

const (
	outcomeSkipped scanOutcome = iota
	outcomeClean
	outcomeNotified
	outcomeNotifyFailed
	outcomeFailed
)

// Scanner checks every user's active portfolio against its rebalance rules and notifies
// users whose allocation drifted
type Scanner struct {
	catalog   Catalog
	store     Store
	notifier  Notifier
	threshold float64
	workers   int
}

func NewScanner(catalog Catalog, store Store, notifier Notifier, threshold float64, workers int) *Scanner {
	if threshold <= 0 {
		threshold = DefaultDeviationThreshold
	}
	if workers <= 0 {
		workers = 1
	}
	return &Scanner{
		catalog:   catalog,
		store:     store,
		notifier:  notifier,
		threshold: threshold,
		workers:   workers,
	}
}

// ScanAll evaluates every user
func (s *Scanner) ScanAll(ctx context.Context) (*ScanReport, error) {
	users, err := s.catalog.Users(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not load users for rebalance scan")
		return nil, err
	}
	return s.Scan(ctx, users)
}

// ScanUser evaluates a single user
func (s *Scanner) ScanUser(ctx context.Context, userID int) (*ScanReport, error) {
	user, err := s.catalog.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx, []*data.User{user})
}

// Scan evaluates users concurrently. A failure for one user is logged and counted; it
// never stops the scan of the others.
func (s *Scanner) Scan(ctx context.Context, users []*data.User) (*ScanReport, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Scan")
	defer span.End()
	span.SetAttributes(attribute.Int("Users", len(users)))

	start := time.Now()

	// one exchange rate for the whole scan
	rate, err := s.catalog.RecentExchangeRate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange rate unavailable")
		log.Error().Stack().Err(err).Msg("could not load exchange rate for rebalance scan")
		return nil, err
	}

	report := &ScanReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, user := range users {
		user := user
		g.Go(func() error {
			outcome := s.scanUser(gctx, user, rate)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSkipped:
				report.Skipped++
			case outcomeClean:
				report.Evaluated++
			case outcomeNotified:
				report.Evaluated++
				report.Flagged++
				report.Notified++
			case outcomeNotifyFailed:
				report.Evaluated++
				report.Flagged++
				report.Failed++
			case outcomeFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	log.Info().Object("Report", report).Msg("rebalance scan finished")
	return report, ctx.Err()
}

func (s *Scanner) scanUser(ctx context.Context, user *data.User, rate float64) scanOutcome {
	subLog := log.With().Int("UserID", user.ID).Logger()

	if err := ctx.Err(); err != nil {
		subLog.Warn().Err(err).Msg("scan cancelled before user was evaluated")
		return outcomeFailed
	}

	p, flags, total, err := s.Evaluate(ctx, user.ID, rate)
	if err != nil {
		if errors.Is(err, ErrNoActivePortfolio) {
			subLog.Debug().Msg("user has no active portfolio")
			return outcomeSkipped
		}
		subLog.Error().Stack().Err(err).Msg("could not evaluate portfolio for rebalance")
		return outcomeFailed
	}

	if !flags.Any() {
		return outcomeClean
	}

	subLog = subLog.With().Str("PortfolioID", p.ID).Logger()
	subLog.Info().Object("Flags", flags).Object("Portfolio", p).Msg("portfolio needs rebalancing")

	alert := &Alert{
		UserName:  user.Name,
		Portfolio: p,
		Flags:     flags,
		Total:     total,
	}
	subject, body := alert.Compose()
	if err := s.notifier.Send(ctx, user.Email, subject, body); err != nil {
		subLog.Error().Stack().Err(err).Str("Email", user.Email).Msg("could not send rebalance notification")
		return outcomeNotifyFailed
	}
	return outcomeNotified
}

// Evaluate computes today's weights of the user's active portfolio and checks them
// against its rebalance rules. It returns the portfolio, the flags and the current
// total valuation.
func (s *Scanner) Evaluate(ctx context.Context, userID int, rate float64) (*Portfolio, Flags, float64, error) {
	versions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, Flags{}, 0, err
	}
	active := versions.Active()
	if active == nil {
		return nil, Flags{}, 0, ErrNoActivePortfolio
	}

	assets, err := s.catalog.AssetsByID(ctx, active.AssetIDs())
	if err != nil {
		return nil, Flags{}, 0, err
	}

	valuer := NewValuer(s.catalog, rate, StrictPrices)
	values, err := valuer.CurrentValues(active.Holdings, assetMap(assets))
	if err != nil {
		return nil, Flags{}, 0, err
	}

	weights := Weights(values)
	flags := CheckDeviation(active, weights, s.threshold)

	return active, flags, floats.Sum(values), nil
}
