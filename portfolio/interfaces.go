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
	"time"

	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/optimizer"
)

// Store persists portfolio versions
type Store interface {
	// GetByID returns ErrPortfolioNotFound for an unknown id
	GetByID(ctx context.Context, id string) (*Portfolio, error)

	// ListByUser returns every version of the user's portfolio, newest first
	ListByUser(ctx context.Context, userID int) (Versions, error)

	GetByUserAndVersion(ctx context.Context, userID, version int) (*Portfolio, error)

	// Append marks the user's active version inactive and stores p as the new active
	// version numbered previous+1
	Append(ctx context.Context, p *Portfolio) (*Portfolio, error)
}

// ExchangeRates supplies the most recent USD to KRW rate
type ExchangeRates interface {
	RecentExchangeRate(ctx context.Context) (float64, error)
}

// PriceHistory reads stored closing prices
type PriceHistory interface {
	PricesAt(ctx context.Context, ids []int, target time.Time) (map[int]data.AssetHistory, error)
	PricesBetween(ctx context.Context, ids []int, begin, end time.Time) (map[int][]data.AssetHistory, error)
	ValidDates(ctx context.Context, assetID int, target time.Time, n int) ([]time.Time, error)
}

// Assets reads asset metadata
type Assets interface {
	AssetsByID(ctx context.Context, ids []int) ([]*data.Asset, error)
	AllAssets(ctx context.Context) ([]*data.Asset, error)
	CovariancesAmong(ctx context.Context, ids []int) ([]data.AssetCovariance, error)
}

// Users reads user accounts
type Users interface {
	Users(ctx context.Context) ([]*data.User, error)
	UserByID(ctx context.Context, userID int) (*data.User, error)
}

// Catalog is everything the portfolio services read from the market data store
type Catalog interface {
	ExchangeRates
	PriceHistory
	Assets
	Users
}

// Optimizer computes optimal weights for a set of assets
type Optimizer interface {
	Optimize(ctx context.Context, req *optimizer.Request) (*optimizer.Response, error)
}

// Notifier delivers a message to a user
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}
