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

package portfolio_test

import (
	"context"
	"errors"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/optimizer"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/mutualrisk/mr-api/portfolio/portfoliotest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		catalog *portfoliotest.Catalog
		store   *portfoliotest.Store
		opt     *portfoliotest.Optimizer
		svc     *portfolio.Service
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC)

		a := domestic(1, "A", 100)
		b := foreign(2, "B", 20)
		b.SectorName = "Technology"
		c := domestic(3, "C", 50)
		c.SectorName = "Energy"
		catalog = portfoliotest.NewCatalog(1300, a, b, c)
		catalog.AddPrices(1, dailyPrices(day(2024, 1, 1), 80, func(ii int) float64 { return 90 + float64(ii%2)*10 })...)
		catalog.AddPrices(2, dailyPrices(day(2024, 1, 1), 80, constant(20))...)
		catalog.AddPrices(3, dailyPrices(day(2024, 1, 1), 80, constant(50))...)
		catalog.Covariances = []data.AssetCovariance{
			{Asset1: 1, Asset2: 1, Covariance: 0.04},
			{Asset1: 2, Asset2: 2, Covariance: 0.09},
			{Asset1: 1, Asset2: 2, Covariance: 0.01},
			{Asset1: 3, Asset2: 3, Covariance: 0.02},
		}
		catalog.UserList = []*data.User{
			{ID: 1, Email: "one@example.com", Name: "One"},
			{ID: 2, Email: "two@example.com", Name: "Two"},
		}

		superseded := day(2024, 2, 1)
		store = portfoliotest.NewStore(
			&portfolio.Portfolio{
				ID: "v2", UserID: 1, Version: 2, Name: "second", IsActive: true, CreatedAt: day(2024, 2, 1),
				Holdings: []portfolio.Holding{
					{AssetID: 1, Code: "A", Quantity: 10},
					{AssetID: 2, Code: "B", Quantity: 5},
					{AssetID: 3, Code: "C", Quantity: 0},
				},
				LowerBounds:          []float64{0, 0, 0},
				UpperBounds:          []float64{1, 1, 1},
				ExactProportion:      []float64{0.1, 0.8, 0.1},
				Weights:              []float64{0.01, 0.99, 0},
				FictionalPerformance: portfolio.Performance{ExpectedReturn: 0.2, Volatility: 0.5, SharpeRatio: 0.4},
				FrontierPoints:       []portfolio.FrontierPoint{{ExpectedReturn: 0.1, Volatility: 0.2}},
			},
			&portfolio.Portfolio{
				ID: "v1", UserID: 1, Version: 1, Name: "first", CreatedAt: day(2024, 1, 10), DeletedAt: &superseded,
				Holdings:             []portfolio.Holding{{AssetID: 3, Code: "C", Quantity: 4}},
				LowerBounds:          []float64{0},
				UpperBounds:          []float64{1},
				Weights:              []float64{1},
				FictionalPerformance: portfolio.Performance{SharpeRatio: 1.0},
			},
		)
		store.Now = func() time.Time { return now }
		opt = &portfoliotest.Optimizer{}
		svc = portfolio.NewService(store, catalog, opt, portfolio.Config{Ticks: 3}).WithClock(func() time.Time { return now })
	})

	Describe("when listing", func() {
		It("returns versions newest first", func() {
			infos, err := svc.List(ctx, 1)
			Expect(err).To(BeNil())
			Expect(infos).To(HaveLen(2))
			Expect(infos[0].ID).To(Equal("v2"))
			Expect(infos[0].IsActive).To(BeTrue())
			Expect(infos[1].Version).To(Equal(1))
		})

		It("returns nothing for a user without portfolios", func() {
			infos, err := svc.List(ctx, 2)
			Expect(err).To(BeNil())
			Expect(infos).To(BeEmpty())
		})
	})

	Describe("when reading details", func() {
		It("reports no portfolio for an unknown id", func() {
			detail, err := svc.Detail(ctx, 1, "missing")
			Expect(err).To(BeNil())
			Expect(detail.HasPortfolio).To(BeFalse())
		})

		It("hides portfolios owned by another user", func() {
			detail, err := svc.Detail(ctx, 2, "v2")
			Expect(err).To(BeNil())
			Expect(detail.HasPortfolio).To(BeFalse())

			_, err = svc.Frontier(ctx, 2, "v2")
			Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
		})

		It("values holdings at recent prices", func() {
			detail, err := svc.Detail(ctx, 1, "v2")
			Expect(err).To(BeNil())
			Expect(detail.HasPortfolio).To(BeTrue())
			Expect(detail.Valuation).To(BeNumerically("==", 131000))
			Expect(detail.Assets).To(HaveLen(3))
		})

		It("reports the daily price change of each asset", func() {
			infos, err := svc.AssetInfos(ctx, 1, "v2")
			Expect(err).To(BeNil())

			// 2024-03-20 is day 79 (odd, 100) and 2024-03-19 day 78 (even, 90)
			Expect(infos[0].DailyChange).To(BeNumerically("~", 10, 1e-9))
			Expect(infos[0].DailyChangeRate).To(BeNumerically("~", 100.0/9.0, 1e-9))
			Expect(infos[1].DailyChange).To(BeNumerically("==", 0))
			Expect(infos[0].Weight).To(BeNumerically("~", 1000.0/131000.0, 1e-12))
			Expect(*infos[1].ExactProportion).To(BeNumerically("==", 0.8))
			Expect(infos[2].Valuation).To(BeNumerically("==", 0))
		})

		It("reports no daily change without two trading dates", func() {
			catalog.History[1] = nil
			infos, err := svc.AssetInfos(ctx, 1, "v2")
			Expect(err).To(BeNil())
			Expect(infos[0].DailyChange).To(BeNumerically("==", 0))
			Expect(infos[0].DailyChangeRate).To(BeNumerically("==", 0))
		})

		It("returns the stored frontier", func() {
			frontier, err := svc.Frontier(ctx, 1, "v2")
			Expect(err).To(BeNil())
			Expect(frontier.FrontierPoints).To(HaveLen(1))
			Expect(frontier.FictionalPerformance.SharpeRatio).To(BeNumerically("==", 0.4))
		})
	})

	Describe("when grouping by sector", func() {
		It("reports percent of the total ordered by weight", func() {
			sectors, err := svc.Sector(ctx, 1, "v2")
			Expect(err).To(BeNil())
			Expect(sectors).To(HaveLen(2))
			Expect(sectors[0].Name).To(Equal("Technology"))
			Expect(sectors[0].Weight).To(BeNumerically("~", 100, 1e-9))
			Expect(sectors[1].Name).To(Equal("Energy"))
			Expect(sectors[1].Weight).To(BeNumerically("==", 0))
		})

		It("guards an all zero portfolio", func() {
			sectors := portfolio.SectorWeights(
				[]portfolio.Holding{{AssetID: 1}, {AssetID: 3}},
				[]float64{0, 0},
				map[int]*data.Asset{1: domestic(1, "A", 1), 3: domestic(3, "C", 1)},
			)
			Expect(sectors).To(HaveLen(1))
			Expect(sectors[0].Weight).To(BeNumerically("==", 0))
		})

		It("requires a known user", func() {
			_, err := svc.Sector(ctx, 9, "v2")
			Expect(errors.Is(err, data.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("when summarizing", func() {
		It("has no last valuation while active", func() {
			summary, err := svc.Summary(ctx, 1, 2)
			Expect(err).To(BeNil())
			Expect(summary.LastValuation).To(BeNil())
			Expect(summary.CurValuation).To(BeNumerically("==", 131000))
			// 2024-02-01 is day 31 (odd): A at 100
			Expect(summary.InitValuation).To(BeNumerically("==", 10*100+5*20*1300))
			Expect(summary.SharpeRatio).To(BeNumerically("==", 0.4))
			Expect(summary.CategoryRanks).To(HaveLen(4))
		})

		It("values a superseded version at its supersession time", func() {
			summary, err := svc.Summary(ctx, 1, 1)
			Expect(err).To(BeNil())
			Expect(summary.LastValuation).NotTo(BeNil())
			Expect(*summary.LastValuation).To(BeNumerically("==", 200))
			Expect(summary.InitValuation).To(BeNumerically("==", 200))
		})

		It("rejects unknown users and versions", func() {
			_, err := svc.Summary(ctx, 9, 1)
			Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
			_, err = svc.Summary(ctx, 1, 7)
			Expect(errors.Is(err, portfolio.ErrVersionNotFound)).To(BeTrue())
		})

		It("ranks the sharpe ratio per market category", func() {
			etf := domestic(10, "KODEX", 1)
			etf.Market = data.MarketETF
			etf.Volatility = ptr(0.1)
			noVol := domestic(11, "NEW", 1)
			noVol.Volatility = nil
			ranks := portfolio.RankSharpe([]*data.Asset{
				domestic(1, "A", 1), // volatility 0.5
				foreign(2, "B", 1),  // volatility 1.5
				etf,
				noVol,
			}, 1.0)

			Expect(ranks[data.CategoryKRX]).To(Equal(portfolio.RiskRank{Total: 1, Rank: 2}))
			Expect(ranks[data.CategoryKRXETF]).To(Equal(portfolio.RiskRank{Total: 1, Rank: 2}))
			Expect(ranks[data.CategoryNASDAQ]).To(Equal(portfolio.RiskRank{Total: 1, Rank: 1}))
			Expect(ranks[data.CategoryNASDAQETF]).To(Equal(portfolio.RiskRank{Total: 0, Rank: 1}))
		})
	})

	Describe("when reconstructing history", func() {
		It("ends an active version's series at today's midnight", func() {
			series, err := svc.HistoricalValuation(ctx, 1, "v2", portfolio.IntervalDay, portfolio.MeasureValuation)
			Expect(err).To(BeNil())
			Expect(series.Performances).To(HaveLen(3))
			Expect(series.Performances[2].Time).To(BeTemporally("==", day(2024, 3, 19)))
			Expect(series.Measure).To(Equal(portfolio.MeasureValuation))
			Expect(series.Stats).NotTo(BeNil())
		})

		It("ends a superseded version's series at its supersession time", func() {
			series, err := svc.HistoricalValuation(ctx, 1, "v1", portfolio.IntervalDay, portfolio.MeasureValuation)
			Expect(err).To(BeNil())
			Expect(series.Performances[2].Time).To(BeTemporally("==", day(2024, 1, 31)))
			Expect(series.Performances[2].Valuation).To(BeNumerically("==", 200))
		})

		It("ends monthly returns at the first of the month", func() {
			points, err := svc.HistoricalReturns(ctx, 1, "v2", portfolio.IntervalMonth)
			Expect(err).To(BeNil())
			// the 2024-01-01 tick falls before v1 was created
			Expect(points).To(HaveLen(1))
			Expect(points[0].Date).To(BeTemporally("==", day(2024, 2, 1)))
			// A moves from 100 to 90 between the two dates
			Expect(points[0].Returns).To(BeNumerically("~", -100.0/131000.0*100, 1e-9))
		})

		It("backtests the selected version", func() {
			series, err := svc.Backtest(ctx, 1, "v1", portfolio.IntervalWeek, portfolio.MeasureProfit)
			Expect(err).To(BeNil())
			Expect(series.Performances).To(HaveLen(3))
			Expect(series.Performances[2].Time).To(BeTemporally("==", day(2024, 3, 13)))
			Expect(series.Stats).To(BeNil())
		})
	})

	Describe("when constructing a portfolio", func() {
		var req *portfolio.Request

		BeforeEach(func() {
			req = &portfolio.Request{
				Name:        "balanced",
				TotalCash:   1000000,
				AssetIDs:    []int{1, 2},
				LowerBounds: []float64{0, 0},
				UpperBounds: []float64{1, 1},
			}
			opt.Response = &optimizer.Response{
				Weights:              []float64{0.5, 0.5},
				FictionalPerformance: optimizer.Performance{ExpectedReturn: 0.15, Volatility: 0.0375},
				FrontierPoints:       []optimizer.FrontierPoint{{ExpectedReturn: 0.1, Volatility: 0.02}},
			}
		})

		It("converts solver weights into whole shares", func() {
			analysis, err := svc.Analyze(ctx, req)
			Expect(err).To(BeNil())
			Expect(analysis.Assets[0].Quantity).To(Equal(5000))
			Expect(analysis.Assets[1].Quantity).To(Equal(19))
			Expect(analysis.TotalValuation).To(BeNumerically("==", 500000+19*20*1300))
			Expect(analysis.Assets[0].RealWeight).To(BeNumerically("~", 500000.0/994000.0, 1e-12))
			Expect(analysis.FictionalPerformance.SharpeRatio).To(BeNumerically("~", 4, 1e-9))
			Expect(analysis.ActualPerformance.Volatility).To(BeNumerically(">", 0))
			Expect(analysis.FrontierPoints).To(HaveLen(1))
		})

		It("sends aligned price history in request order", func() {
			catalog.History[2] = catalog.History[2][10:]
			_, err := svc.Analyze(ctx, req)
			Expect(err).To(BeNil())
			Expect(opt.Requests).To(HaveLen(1))
			sent := opt.Requests[0]
			Expect(sent.ExpectedReturns).To(Equal([]float64{0.1, 0.2}))
			Expect(sent.PricesDataFrame).To(HaveLen(2))
			Expect(sent.PricesDataFrame[0]).To(HaveLen(len(sent.PricesDataFrame[1])))
			Expect(sent.PricesDataFrame[1]).To(HaveLen(70))
		})

		It("requires an expected return for every asset", func() {
			catalog.Assets[2].ExpectedReturn = nil
			_, err := svc.Analyze(ctx, req)
			Expect(errors.Is(err, common.ErrInsufficientHistory)).To(BeTrue())
			Expect(opt.Requests).To(BeEmpty())
		})

		It("rejects mismatched bounds before loading data", func() {
			req.UpperBounds = []float64{1}
			_, err := svc.Analyze(ctx, req)
			Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeTrue())
			Expect(opt.Requests).To(BeEmpty())
		})

		It("propagates solver failures", func() {
			opt.Err = optimizer.ErrBadStatus
			_, err := svc.Analyze(ctx, req)
			Expect(errors.Is(err, common.ErrUpstream)).To(BeTrue())
		})

		It("supersedes the active version on confirm", func() {
			created, err := svc.Confirm(ctx, 1, req)
			Expect(err).To(BeNil())
			Expect(created.Version).To(Equal(3))
			Expect(created.IsActive).To(BeTrue())
			Expect(created.Holdings[1].Quantity).To(Equal(19))

			versions, err := store.ListByUser(ctx, 1)
			Expect(err).To(BeNil())
			Expect(versions.Validate()).To(Succeed())
			Expect(versions.Active().ID).To(Equal(created.ID))
			Expect(versions[1].IsActive).To(BeFalse())
			Expect(versions[1].DeletedAt).NotTo(BeNil())
		})

		It("numbers a first portfolio as version one", func() {
			created, err := svc.Confirm(ctx, 2, req)
			Expect(err).To(BeNil())
			Expect(created.Version).To(Equal(1))
		})

		It("computes share counts with decimal rounding", func() {
			Expect(portfolio.ShareCount(1000000, 0.5, 20, 1300)).To(Equal(19))
			Expect(portfolio.ShareCount(1000, 0.25, 0, 1)).To(Equal(0))
			Expect(portfolio.ShareCount(300, 0.5, 100, 1)).To(Equal(2))
		})
	})
})
