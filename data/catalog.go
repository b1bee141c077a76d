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

package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data/database"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultDaysPerUnit = 10

	exchangeRateCacheKey = "exchange_rate:recent"
	assetColumns         = "asset_id, code, name, region, market, industry_id, industry_name, sector_name, expected_return, volatility, recent_price, oldest_price"
)

// Catalog provides read access to the market data tables: assets, their price
// history and covariances, exchange rates, market holidays and users
type Catalog struct {
	cache       *common.Cache
	daysPerUnit int
}

// NewCatalog creates a catalog. daysPerUnit is the number of calendar days searched
// for each requested trade date when looking back through price history.
func NewCatalog(cache *common.Cache, daysPerUnit int) *Catalog {
	if daysPerUnit <= 0 {
		daysPerUnit = DefaultDaysPerUnit
	}
	return &Catalog{
		cache:       cache,
		daysPerUnit: daysPerUnit,
	}
}

// query runs sql in its own transaction and calls scan once for every returned row
func (c *Catalog) query(ctx context.Context, name string, scan func(pgx.Rows) error, sql string, args ...interface{}) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "mrdb."+name)
	defer span.End()

	subLog := log.With().Str("Query", name).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		span.RecordError(err)
		msg := "could not get a database transaction"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Stack().Err(err).Msg(msg)
		return err
	}

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Str("SQL", sql).Msg("database query failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	for rows.Next() {
		if err := scan(rows); err != nil {
			rows.Close()
			span.RecordError(err)
			span.SetStatus(codes.Error, "could not scan row")
			subLog.Error().Stack().Err(err).Msg("could not SCAN DB result")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "row iteration failed")
		subLog.Error().Stack().Err(err).Msg("row iteration failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return nil
}

func scanAsset(rows pgx.Rows) (*Asset, error) {
	var region string
	asset := &Asset{}
	err := rows.Scan(&asset.ID, &asset.Code, &asset.Name, &region, &asset.Market, &asset.IndustryID,
		&asset.IndustryName, &asset.SectorName, &asset.ExpectedReturn, &asset.Volatility, &asset.RecentPrice, &asset.OldestPrice)
	asset.Region = Region(region)
	return asset, err
}

func scanHistory(rows pgx.Rows) (AssetHistory, error) {
	var hist AssetHistory
	err := rows.Scan(&hist.AssetID, &hist.Price, &hist.Date)
	return hist, err
}

// AssetsByID returns the requested assets in the order they were requested. If any id
// is unknown ErrAssetNotFound is returned. Rows are always read from the database since
// recent price, expected return and volatility change whenever prices are ingested.
func (c *Catalog) AssetsByID(ctx context.Context, ids []int) ([]*Asset, error) {
	if len(ids) == 0 {
		return []*Asset{}, nil
	}

	found := make(map[int]*Asset, len(ids))
	err := c.query(ctx, "AssetsByID", func(rows pgx.Rows) error {
		asset, err := scanAsset(rows)
		if err != nil {
			return err
		}
		found[asset.ID] = asset
		return nil
	}, "SELECT "+assetColumns+" FROM asset WHERE asset_id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}

	assets := make([]*Asset, len(ids))
	for idx, id := range ids {
		asset, ok := found[id]
		if !ok {
			log.Warn().Int("AssetID", id).Msg("asset does not exist")
			return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, id)
		}
		assets[idx] = asset
	}
	return assets, nil
}

// AllAssets returns every asset in the catalog
func (c *Catalog) AllAssets(ctx context.Context) ([]*Asset, error) {
	assets := make([]*Asset, 0, 1024)
	err := c.query(ctx, "AllAssets", func(rows pgx.Rows) error {
		asset, err := scanAsset(rows)
		if err != nil {
			return err
		}
		assets = append(assets, asset)
		return nil
	}, "SELECT "+assetColumns+" FROM asset ORDER BY asset_id")
	return assets, err
}

// SearchAssets returns up to 50 assets whose code or name contains keyword
func (c *Catalog) SearchAssets(ctx context.Context, keyword string) ([]*Asset, error) {
	assets := make([]*Asset, 0, 16)
	err := c.query(ctx, "SearchAssets", func(rows pgx.Rows) error {
		asset, err := scanAsset(rows)
		if err != nil {
			return err
		}
		assets = append(assets, asset)
		return nil
	}, "SELECT "+assetColumns+" FROM asset WHERE code ILIKE $1 OR name ILIKE $1 ORDER BY code LIMIT 50", "%"+keyword+"%")
	return assets, err
}

// PricesBetween returns the price history of each asset between begin and end
// (inclusive), ordered chronologically
func (c *Catalog) PricesBetween(ctx context.Context, ids []int, begin, end time.Time) (map[int][]AssetHistory, error) {
	if begin.After(end) {
		return nil, ErrBeginAfterEnd
	}

	res := make(map[int][]AssetHistory, len(ids))
	err := c.query(ctx, "PricesBetween", func(rows pgx.Rows) error {
		hist, err := scanHistory(rows)
		if err != nil {
			return err
		}
		res[hist.AssetID] = append(res[hist.AssetID], hist)
		return nil
	}, "SELECT asset_id, price, trade_date FROM asset_history WHERE asset_id = ANY($1) AND trade_date BETWEEN $2 AND $3 ORDER BY asset_id, trade_date", ids, begin, end)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ValidDates returns the n trade dates closest to (and not after) target, newest
// first. Only the 10*n calendar days preceding target are searched; if that window
// holds fewer than n trade dates the result is empty.
func (c *Catalog) ValidDates(ctx context.Context, assetID int, target time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, ErrInvalidCount
	}

	begin := target.AddDate(0, 0, -c.daysPerUnit*n)
	prices, err := c.PricesBetween(ctx, []int{assetID}, begin, target)
	if err != nil {
		return nil, err
	}

	hist := prices[assetID]
	if len(hist) < n {
		log.Debug().Int("AssetID", assetID).Time("Target", target).Int("N", n).Int("Found", len(hist)).Msg("not enough trade dates in look-back window")
		return []time.Time{}, nil
	}

	dates := make([]time.Time, n)
	for ii := 0; ii < n; ii++ {
		dates[ii] = hist[len(hist)-1-ii].Date
	}
	return dates, nil
}

// PricesAt returns the most recent price of each asset within the single-date
// look-back window ending at target. Assets without a price in that window are
// absent from the result.
func (c *Catalog) PricesAt(ctx context.Context, ids []int, target time.Time) (map[int]AssetHistory, error) {
	res := make(map[int]AssetHistory, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	begin := target.AddDate(0, 0, -c.daysPerUnit)
	err := c.query(ctx, "PricesAt", func(rows pgx.Rows) error {
		hist, err := scanHistory(rows)
		if err != nil {
			return err
		}
		res[hist.AssetID] = hist
		return nil
	}, "SELECT DISTINCT ON (asset_id) asset_id, price, trade_date FROM asset_history WHERE asset_id = ANY($1) AND trade_date BETWEEN $2 AND $3 ORDER BY asset_id, trade_date DESC", ids, begin, target)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PriceAt returns the price of assetID on the trade date closest to target or
// ErrNoPriceHistory when the look-back window is empty
func (c *Catalog) PriceAt(ctx context.Context, assetID int, target time.Time) (AssetHistory, error) {
	prices, err := c.PricesAt(ctx, []int{assetID}, target)
	if err != nil {
		return AssetHistory{}, err
	}

	hist, ok := prices[assetID]
	if !ok {
		return AssetHistory{}, fmt.Errorf("%w: asset %d on %s", ErrNoPriceHistory, assetID, target.Format("2006-01-02"))
	}
	return hist, nil
}

// RecentHistory returns period prices of assetID ending offset trade dates before the
// newest one, in chronological order
func (c *Catalog) RecentHistory(ctx context.Context, assetID int, period, offset int) ([]AssetHistory, error) {
	if period <= 0 || offset < 0 {
		return nil, ErrInvalidCount
	}

	if _, err := c.AssetsByID(ctx, []int{assetID}); err != nil {
		return nil, err
	}

	hist := make([]AssetHistory, 0, period)
	err := c.query(ctx, "RecentHistory", func(rows pgx.Rows) error {
		h, err := scanHistory(rows)
		if err != nil {
			return err
		}
		hist = append(hist, h)
		return nil
	}, "SELECT asset_id, price, trade_date FROM asset_history WHERE asset_id = $1 ORDER BY trade_date DESC LIMIT $2 OFFSET $3", assetID, period, offset)
	if err != nil {
		return nil, err
	}

	for ii, jj := 0, len(hist)-1; ii < jj; ii, jj = ii+1, jj-1 {
		hist[ii], hist[jj] = hist[jj], hist[ii]
	}
	return hist, nil
}

// RecentExchangeRate returns the most recently published USD to KRW rate
func (c *Catalog) RecentExchangeRate(ctx context.Context) (float64, error) {
	if cached, err := common.CacheGetJSON[float64](ctx, c.cache, exchangeRateCacheKey); err == nil {
		return *cached, nil
	}

	found := false
	var rate float64
	err := c.query(ctx, "RecentExchangeRate", func(rows pgx.Rows) error {
		found = true
		return rows.Scan(&rate)
	}, "SELECT rate FROM exchange_rate ORDER BY rate_date DESC LIMIT 1")
	if err != nil {
		return 0, err
	}

	if !found || rate <= 0 {
		log.Error().Bool("Found", found).Float64("Rate", rate).Msg("no usable exchange rate")
		return 0, ErrExchangeRateNotFound
	}

	if err := common.CacheSetJSON(ctx, c.cache, exchangeRateCacheKey, rate); err != nil {
		log.Warn().Err(err).Msg("could not cache exchange rate")
	}
	return rate, nil
}

// CovariancesAmong returns every stored covariance between two assets of ids
func (c *Catalog) CovariancesAmong(ctx context.Context, ids []int) ([]AssetCovariance, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "catalog.CovariancesAmong")
	defer span.End()
	span.SetAttributes(attribute.Int("assets", len(ids)))

	res := make([]AssetCovariance, 0, len(ids)*len(ids))
	err := c.query(ctx, "CovariancesAmong", func(rows pgx.Rows) error {
		var cov AssetCovariance
		if err := rows.Scan(&cov.Asset1, &cov.Asset2, &cov.Covariance); err != nil {
			return err
		}
		res = append(res, cov)
		return nil
	}, "SELECT asset_id_1, asset_id_2, covariance FROM asset_covariance WHERE asset_id_1 = ANY($1) AND asset_id_2 = ANY($1)", ids)
	return res, err
}

// Users returns every registered user
func (c *Catalog) Users(ctx context.Context) ([]*User, error) {
	users := make([]*User, 0, 100)
	err := c.query(ctx, "Users", func(rows pgx.Rows) error {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	}, "SELECT user_id, email, name FROM users ORDER BY user_id")
	return users, err
}

func (c *Catalog) UserByID(ctx context.Context, userID int) (*User, error) {
	var user *User
	err := c.query(ctx, "UserByID", func(rows pgx.Rows) error {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name); err != nil {
			return err
		}
		user = u
		return nil
	}, "SELECT user_id, email, name FROM users WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return user, nil
}

// MarketHolidays returns the exchange holidays between begin and end
func (c *Catalog) MarketHolidays(ctx context.Context, begin, end time.Time) ([]time.Time, error) {
	if begin.After(end) {
		return nil, ErrBeginAfterEnd
	}

	days := make([]time.Time, 0, 16)
	err := c.query(ctx, "MarketHolidays", func(rows pgx.Rows) error {
		var dt time.Time
		if err := rows.Scan(&dt); err != nil {
			return err
		}
		days = append(days, dt)
		return nil
	}, "SELECT holiday FROM market_holidays WHERE holiday BETWEEN $1 AND $2 ORDER BY holiday", begin, end)
	return days, err
}
