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
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/mutualrisk/mr-api/portfolio/portfoliotest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reconstructor", func() {
	var (
		ctx      context.Context
		catalog  *portfoliotest.Catalog
		versions portfolio.Versions
		rec      *portfolio.Reconstructor
	)

	BeforeEach(func() {
		ctx = context.Background()
		catalog = portfoliotest.NewCatalog(1300, domestic(1, "A", 100))
		catalog.AddPrices(1, dailyPrices(day(2024, 1, 1), 60, constant(100))...)

		superseded := day(2024, 2, 15)
		versions = portfolio.Versions{
			{
				ID: "v2", UserID: 1, Version: 2, CreatedAt: day(2024, 2, 15), IsActive: true,
				Holdings: []portfolio.Holding{{AssetID: 1, Code: "A", Quantity: 2}},
			},
			{
				ID: "v1", UserID: 1, Version: 1, CreatedAt: day(2024, 1, 1), DeletedAt: &superseded,
				Holdings: []portfolio.Holding{{AssetID: 1, Code: "A", Quantity: 1}},
			},
		}
		rec = portfolio.NewReconstructor(catalog, 5)
	})

	Describe("when building a valuation series", func() {
		It("switches to the version in effect at each tick and returns oldest first", func() {
			points, err := rec.ValuationSeries(ctx, versions, 0, day(2024, 2, 17), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(5))

			Expect(points[0].Time).To(BeTemporally("==", day(2024, 2, 12)))
			Expect(points[4].Time).To(BeTemporally("==", day(2024, 2, 16)))

			vals := make([]float64, len(points))
			for idx, pt := range points {
				vals[idx] = pt.Valuation
			}
			Expect(vals).To(Equal([]float64{100, 100, 100, 200, 200}))
		})

		It("fetches the exchange rate once per call", func() {
			_, err := rec.ValuationSeries(ctx, versions, 0, day(2024, 2, 17), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			Expect(catalog.RateCalls).To(Equal(1))
		})

		It("stops when the history is exhausted", func() {
			points, err := rec.ValuationSeries(ctx, versions[:1], 0, day(2024, 2, 17), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(2))
			Expect(points[0].Time).To(BeTemporally("==", day(2024, 2, 15)))
		})

		It("starts at the requested version", func() {
			points, err := rec.ValuationSeries(ctx, versions, 1, day(2024, 2, 15), portfolio.IntervalWeek)
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(5))
			for _, pt := range points {
				Expect(pt.Valuation).To(BeNumerically("==", 100))
			}
		})

		It("is idempotent", func() {
			first, err := rec.ValuationSeries(ctx, versions, 0, day(2024, 2, 17), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			second, err := rec.ValuationSeries(ctx, versions, 0, day(2024, 2, 17), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			Expect(second).To(Equal(first))
		})

		It("refuses a corrupt version log", func() {
			versions[1].IsActive = true
			_, err := rec.ValuationSeries(ctx, versions, 0, day(2024, 2, 17), portfolio.IntervalDay)
			Expect(errors.Is(err, common.ErrDataIntegrity)).To(BeTrue())
		})

		It("falls back to the oldest price before the first record", func() {
			points, err := rec.ValuationSeries(ctx, versions[1:], 0, day(2024, 1, 3), portfolio.IntervalYear)
			Expect(err).To(BeNil())
			Expect(points).To(BeEmpty())

			versions[1].CreatedAt = day(2020, 1, 1)
			points, err = rec.ValuationSeries(ctx, versions[1:], 0, day(2023, 6, 1), portfolio.IntervalYear)
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(3))
			for _, pt := range points {
				Expect(pt.Valuation).To(BeNumerically("==", 50))
			}
		})
	})

	Describe("when building a return series", func() {
		It("reports the percent change over the following interval", func() {
			growing := portfoliotest.NewCatalog(1300, domestic(1, "A", 100))
			growing.AddPrices(1, dailyPrices(day(2024, 1, 1), 60, func(ii int) float64 {
				return 100 + float64(ii)
			})...)
			rec = portfolio.NewReconstructor(growing, 3)

			points, err := rec.ReturnSeries(ctx, versions, 0, day(2024, 2, 20), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(3))

			// 2024-02-17 is day 47: (148-147)/147*100
			Expect(points[0].Date).To(BeTemporally("==", day(2024, 2, 17)))
			Expect(points[0].Returns).To(BeNumerically("~", 100.0/147.0, 1e-9))
			Expect(points[2].Date).To(BeTemporally("==", day(2024, 2, 19)))
		})

		It("reports a division by zero for a zero reference valuation", func() {
			empty := domestic(1, "A", 0)
			empty.OldestPrice = 0
			rec = portfolio.NewReconstructor(portfoliotest.NewCatalog(1300, empty), 3)
			_, err := rec.ReturnSeries(ctx, versions, 0, day(2024, 2, 20), portfolio.IntervalDay)
			Expect(errors.Is(err, common.ErrDivisionByZero)).To(BeTrue())
		})
	})

	Describe("when backtesting", func() {
		It("values one version at every tick, oldest first", func() {
			points, err := rec.Backtest(ctx, versions[0], day(2024, 2, 20), portfolio.IntervalDay)
			Expect(err).To(BeNil())
			Expect(points).To(HaveLen(5))
			Expect(points[0].Time).To(BeTemporally("==", day(2024, 2, 15)))
			Expect(points[4].Time).To(BeTemporally("==", day(2024, 2, 19)))
			for _, pt := range points {
				Expect(pt.Valuation).To(BeNumerically("==", 200))
			}
		})
	})

	DescribeTable("parsing intervals",
		func(input string, expected portfolio.Interval, valid bool) {
			interval, err := portfolio.ParseInterval(input)
			if valid {
				Expect(err).To(BeNil())
				Expect(interval).To(Equal(expected))
			} else {
				Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeTrue())
			}
		},
		Entry("day", "DAY", portfolio.IntervalDay, true),
		Entry("lower case week", "week", portfolio.IntervalWeek, true),
		Entry("month", "Month", portfolio.IntervalMonth, true),
		Entry("year", "YEAR", portfolio.IntervalYear, true),
		Entry("unknown", "FORTNIGHT", portfolio.Interval(""), false),
	)

	DescribeTable("parsing measures",
		func(input string, valid bool) {
			_, err := portfolio.ParseMeasure(input)
			if valid {
				Expect(err).To(BeNil())
			} else {
				Expect(errors.Is(err, common.ErrInvalidParameter)).To(BeTrue())
			}
		},
		Entry("valuation", "VALUATION", true),
		Entry("profit", "profit", true),
		Entry("unknown", "ALPHA", false),
	)

	It("moves dates by calendar intervals", func() {
		Expect(portfolio.IntervalMonth.Back(day(2024, 3, 31), 1)).To(BeTemporally("==", day(2024, 2, 29)))
		Expect(portfolio.IntervalWeek.Forward(day(2024, 3, 1), 2)).To(BeTemporally("==", day(2024, 3, 15)))
		Expect(portfolio.IntervalYear.Back(day(2024, 3, 1), 1)).To(BeTemporally("==", day(2023, 3, 1)))
	})

	DescribeTable("clamps month and year steps to the end of the month",
		func(interval portfolio.Interval, from time.Time, n int, expected time.Time) {
			Expect(interval.Forward(from, n)).To(BeTemporally("==", expected))
		},
		Entry("march 31 back one month", portfolio.IntervalMonth, day(2025, 3, 31), -1, day(2025, 2, 28)),
		Entry("march 31 back four months", portfolio.IntervalMonth, day(2025, 3, 31), -4, day(2024, 11, 30)),
		Entry("january 31 forward one month", portfolio.IntervalMonth, day(2024, 1, 31), 1, day(2024, 2, 29)),
		Entry("december 31 forward two months", portfolio.IntervalMonth, day(2024, 12, 31), 2, day(2025, 2, 28)),
		Entry("leap day back one year", portfolio.IntervalYear, day(2024, 2, 29), -1, day(2023, 2, 28)),
		Entry("leap day forward four years", portfolio.IntervalYear, day(2024, 2, 29), 4, day(2028, 2, 29)),
	)

	It("walks thirty monthly ticks back from a month end with one tick per month", func() {
		end := day(2025, 3, 31)
		seen := make(map[string]bool)
		prev := end
		for tick := 0; tick < 30; tick++ {
			target := portfolio.IntervalMonth.Back(end, tick)
			key := target.Format("2006-01")
			Expect(seen).ToNot(HaveKey(key))
			seen[key] = true
			if tick > 0 {
				Expect(target.Before(prev)).To(BeTrue())
			}
			prev = target
		}
		Expect(seen).To(HaveLen(30))
		Expect(seen).To(HaveKey("2025-02"))
		Expect(seen).To(HaveKey("2022-10"))
	})
})
