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

package data_test

import (
	"context"
	"errors"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/data/database"
	"github.com/mutualrisk/mr-api/pgxmockhelper"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("Catalog", func() {
	var (
		dbPool  pgxmock.PgxConnIface
		catalog *data.Catalog
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
		catalog = data.NewCatalog(nil, 10)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		Expect(database.OpenTransactionCount()).To(Equal(0))
	})

	Context("when loading assets", func() {
		It("returns assets in the requested order", func() {
			pgxmockhelper.MockAssetQuery(dbPool, "../testdata/assets.csv", []int{3, 1})
			assets, err := catalog.AssetsByID(ctx, []int{3, 1})
			Expect(err).To(BeNil())
			Expect(assets).To(HaveLen(2))
			Expect(assets[0].Code).To(Equal("SPY"))
			Expect(assets[1].Code).To(Equal("005930"))
			Expect(assets[1].Region).To(Equal(data.RegionDomestic))
			Expect(*assets[1].ExpectedReturn).To(BeNumerically("~", 0.12, 1e-9))
		})

		It("leaves a missing expected return nil", func() {
			pgxmockhelper.MockAssetQuery(dbPool, "../testdata/assets.csv", []int{4})
			assets, err := catalog.AssetsByID(ctx, []int{4})
			Expect(err).To(BeNil())
			Expect(assets[0].ExpectedReturn).To(BeNil())
		})

		It("fails with not found when an id is unknown", func() {
			pgxmockhelper.MockAssetQuery(dbPool, "../testdata/assets.csv", []int{1, 99})
			_, err := catalog.AssetsByID(ctx, []int{1, 99})
			Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
		})

		It("reads refreshed prices even when a cache is configured", func() {
			cache, err := common.NewCache(16, "", time.Minute)
			Expect(err).To(BeNil())
			catalog = data.NewCatalog(cache, 10)

			pgxmockhelper.MockAssetQuery(dbPool, "../testdata/assets.csv", []int{1})
			assets, err := catalog.AssetsByID(ctx, []int{1})
			Expect(err).To(BeNil())
			Expect(assets[0].RecentPrice).To(BeNumerically("==", 71000))

			pgxmockhelper.MockAssetQuery(dbPool, "../testdata/assets_refreshed.csv", []int{1, 3})
			assets, err = catalog.AssetsByID(ctx, []int{1, 3})
			Expect(err).To(BeNil())
			Expect(assets[0].Name).To(Equal("Samsung Electronics"))
			Expect(assets[0].RecentPrice).To(BeNumerically("==", 73500))
			Expect(*assets[0].Volatility).To(BeNumerically("~", 0.95, 1e-9))
			Expect(assets[1].Name).To(Equal("SPDR S&P 500 ETF Trust"))
		})

		It("loads the whole catalog", func() {
			pgxmockhelper.MockAllAssetsQuery(dbPool, "../testdata/assets.csv")
			assets, err := catalog.AllAssets(ctx)
			Expect(err).To(BeNil())
			Expect(assets).To(HaveLen(4))
			Expect(assets[3].Volatility).To(BeNil())
		})

		It("does not query for an empty id list", func() {
			assets, err := catalog.AssetsByID(ctx, []int{})
			Expect(err).To(BeNil())
			Expect(assets).To(BeEmpty())
		})

		DescribeTable("categorizes assets by market",
			func(id int, expected string) {
				pgxmockhelper.MockAssetQuery(dbPool, "../testdata/assets.csv", []int{id})
				assets, err := catalog.AssetsByID(ctx, []int{id})
				Expect(err).To(BeNil())
				Expect(assets[0].Category()).To(Equal(expected))
			},
			Entry("domestic stock", 1, data.CategoryKRX),
			Entry("foreign stock", 2, data.CategoryNASDAQ),
			Entry("foreign etf", 3, data.CategoryNASDAQETF),
			Entry("domestic etf", 4, data.CategoryKRXETF),
		)
	})

	Context("when looking up valid trade dates", func() {
		It("returns the n most recent dates newest first", func() {
			target := day(2024, 3, 15)
			pgxmockhelper.MockPriceQuery(dbPool, "../testdata/history.csv", []int{1}, target.AddDate(0, 0, -50), target)
			dates, err := catalog.ValidDates(ctx, 1, target, 5)
			Expect(err).To(BeNil())
			Expect(dates).To(Equal([]time.Time{
				day(2024, 3, 15), day(2024, 3, 14), day(2024, 3, 13), day(2024, 3, 12), day(2024, 3, 11),
			}))
		})

		It("skips non-trade days", func() {
			target := day(2024, 3, 10)
			pgxmockhelper.MockPriceQuery(dbPool, "../testdata/history.csv", []int{1}, target.AddDate(0, 0, -20), target)
			dates, err := catalog.ValidDates(ctx, 1, target, 2)
			Expect(err).To(BeNil())
			Expect(dates).To(Equal([]time.Time{day(2024, 3, 8), day(2024, 3, 7)}))
		})

		It("returns an empty list when fewer than n records exist", func() {
			target := day(2024, 3, 15)
			pgxmockhelper.MockPriceQuery(dbPool, "../testdata/history.csv", []int{2}, target.AddDate(0, 0, -50), target)
			dates, err := catalog.ValidDates(ctx, 2, target, 5)
			Expect(err).To(BeNil())
			Expect(dates).To(BeEmpty())
		})

		It("rejects a non-positive count", func() {
			_, err := catalog.ValidDates(ctx, 1, day(2024, 3, 15), 0)
			Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeTrue())
		})
	})

	Context("when looking up prices on a date", func() {
		It("uses the closest earlier trade date", func() {
			target := day(2024, 3, 17)
			pgxmockhelper.MockPricesAtQuery(dbPool, "../testdata/history.csv", []int{1, 2}, target.AddDate(0, 0, -10), target)
			prices, err := catalog.PricesAt(ctx, []int{1, 2}, target)
			Expect(err).To(BeNil())
			Expect(prices).To(HaveLen(2))
			Expect(prices[1].Price).To(Equal(71000.0))
			Expect(prices[1].Date).To(Equal(day(2024, 3, 15)))
			Expect(prices[2].Price).To(Equal(190.0))
		})

		It("reports insufficient history when the window is empty", func() {
			target := day(2024, 3, 1)
			pgxmockhelper.MockPricesAtQuery(dbPool, "../testdata/history.csv", []int{2}, target.AddDate(0, 0, -10), target)
			_, err := catalog.PriceAt(ctx, 2, target)
			Expect(errors.Is(err, common.ErrInsufficientHistory)).To(BeTrue())
		})

		It("rejects an inverted range", func() {
			_, err := catalog.PricesBetween(ctx, []int{1}, day(2024, 3, 15), day(2024, 3, 1))
			Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeTrue())
		})
	})

	Context("when loading exchange rates", func() {
		It("caches the most recent rate", func() {
			cache, err := common.NewCache(16, "", time.Minute)
			Expect(err).To(BeNil())
			catalog = data.NewCatalog(cache, 10)

			pgxmockhelper.MockExchangeRateQuery(dbPool, 1350.5)
			rate, err := catalog.RecentExchangeRate(ctx)
			Expect(err).To(BeNil())
			Expect(rate).To(Equal(1350.5))

			// second call is served from the cache
			rate, err = catalog.RecentExchangeRate(ctx)
			Expect(err).To(BeNil())
			Expect(rate).To(Equal(1350.5))
		})

		It("fails when no rate has been published", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("SET ROLE").WillReturnResult(pgconnTag("SET ROLE"))
			dbPool.ExpectQuery("SELECT rate FROM exchange_rate").WillReturnRows(pgxmock.NewRows([]string{"rate"}))
			dbPool.ExpectCommit()

			_, err := catalog.RecentExchangeRate(ctx)
			Expect(errors.Is(err, data.ErrExchangeRateNotFound)).To(BeTrue())
		})
	})

	Context("when loading covariances", func() {
		It("only returns pairs among the requested assets", func() {
			pgxmockhelper.MockCovarianceQuery(dbPool, "../testdata/covariances.csv", []int{1, 2})
			covs, err := catalog.CovariancesAmong(ctx, []int{1, 2})
			Expect(err).To(BeNil())
			Expect(covs).To(ConsistOf(
				data.AssetCovariance{Asset1: 1, Asset2: 1, Covariance: 0.04},
				data.AssetCovariance{Asset1: 2, Asset2: 2, Covariance: 0.05},
				data.AssetCovariance{Asset1: 1, Asset2: 2, Covariance: 0.02},
			))
		})
	})

	Context("when loading users", func() {
		It("returns every user", func() {
			pgxmockhelper.MockUsersQuery(dbPool, "../testdata/users.csv")
			users, err := catalog.Users(ctx)
			Expect(err).To(BeNil())
			Expect(users).To(HaveLen(3))
			Expect(users[0].Email).To(Equal("jiwoo@example.com"))
		})

		It("rolls back when the query fails", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("SET ROLE").WillReturnResult(pgconnTag("SET ROLE"))
			dbPool.ExpectQuery("SELECT user_id, email, name FROM users").WillReturnError(errors.New("connection reset"))
			dbPool.ExpectRollback()

			_, err := catalog.Users(ctx)
			Expect(err).To(HaveOccurred())
		})
	})
})
