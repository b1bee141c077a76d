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

package cmd

import (
	"context"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/data/database"
	"github.com/mutualrisk/mr-api/docstore"
	"github.com/mutualrisk/mr-api/messenger"
	"github.com/mutualrisk/mr-api/optimizer"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/mutualrisk/mr-api/tradecron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// backend holds the collaborators shared by the serve and scan commands
type backend struct {
	catalog *data.Catalog
	store   *docstore.Store
	service *portfolio.Service
}

// connectBackend opens the market data database, the cache and the document store
func connectBackend(ctx context.Context) (*backend, error) {
	cache, err := common.NewCacheFromConfig()
	if err != nil {
		return nil, err
	}

	if err := database.Connect(ctx); err != nil {
		return nil, err
	}
	catalog := data.NewCatalog(cache, viper.GetInt("lookback.days_per_unit"))

	store, err := docstore.Connect(ctx, docstore.ConfigFromViper())
	if err != nil {
		return nil, err
	}

	solver := optimizer.New(
		viper.GetString("solver.url"),
		viper.GetString("solver.path"),
		viper.GetDuration("solver.timeout"),
		viper.GetFloat64("solver.rate_limit"),
	)

	service := portfolio.NewService(store, catalog, solver, portfolio.Config{
		Ticks:       viper.GetInt("history.ticks"),
		SolverYears: viper.GetInt("history.solver_years"),
	})

	return &backend{
		catalog: catalog,
		store:   store,
		service: service,
	}, nil
}

func (b *backend) Close(ctx context.Context) {
	if err := b.store.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("could not close document store")
	}
}

// newScanner builds a rebalance scanner that delivers through notifier
func (b *backend) newScanner(notifier messenger.Dispatcher) *portfolio.Scanner {
	return portfolio.NewScanner(
		b.catalog,
		b.store,
		notifier,
		viper.GetFloat64("rebalance.deviation_threshold"),
		viper.GetInt("rebalance.workers"),
	)
}

// tradeSchedule loads the exchange calendar and parses rebalance.schedule against it
func (b *backend) tradeSchedule(ctx context.Context) (*tradecron.TradeCron, error) {
	now := common.Midnight(time.Now().In(common.GetTimezone()))
	calendar, err := tradecron.LoadCalendar(ctx, b.catalog, now)
	if err != nil {
		return nil, err
	}
	return tradecron.New(viper.GetString("rebalance.schedule"), tradecron.KRXHours, calendar)
}
