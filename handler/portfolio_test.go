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

package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/data"
	"github.com/mutualrisk/mr-api/handler"
	"github.com/mutualrisk/mr-api/optimizer"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/mutualrisk/mr-api/portfolio/portfoliotest"
	"github.com/mutualrisk/mr-api/router"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeScanner struct {
	report *portfolio.ScanReport
	err    error
	calls  int
}

func (f *fakeScanner) ScanAll(ctx context.Context) (*portfolio.ScanReport, error) {
	f.calls++
	return f.report, f.err
}

type reply struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func asset(id int, code string, price float64) *data.Asset {
	er := 0.1
	vol := 0.5
	return &data.Asset{
		ID:             id,
		Code:           code,
		Name:           code,
		Region:         data.RegionDomestic,
		Market:         "KOSPI",
		SectorName:     "Technology",
		ExpectedReturn: &er,
		Volatility:     &vol,
		RecentPrice:    price,
		OldestPrice:    price,
	}
}

var _ = Describe("Portfolio routes", func() {
	var (
		app     *fiber.App
		store   *portfoliotest.Store
		opt     *portfoliotest.Optimizer
		scanner *fakeScanner
		now     time.Time
	)

	do := func(method, target, userID, body string) (int, reply) {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, reader)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if userID != "" {
			req.Header.Set("X-User-Id", userID)
		}
		resp, err := app.Test(req, -1)
		Expect(err).To(BeNil())
		defer resp.Body.Close()

		out := reply{}
		raw, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		if len(raw) > 0 {
			Expect(json.Unmarshal(raw, &out)).To(Succeed())
		}
		return resp.StatusCode, out
	}

	BeforeEach(func() {
		now = time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC)

		catalog := portfoliotest.NewCatalog(1300, asset(1, "A", 100), asset(2, "B", 50))
		for ii := 0; ii < 60; ii++ {
			date := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC).AddDate(0, 0, ii)
			catalog.AddPrices(1, data.AssetHistory{Date: date, Price: 100})
			catalog.AddPrices(2, data.AssetHistory{Date: date, Price: 50})
		}
		catalog.Covariances = []data.AssetCovariance{
			{Asset1: 1, Asset2: 1, Covariance: 0.04},
			{Asset1: 2, Asset2: 2, Covariance: 0.09},
		}
		catalog.UserList = []*data.User{{ID: 1, Email: "one@example.com", Name: "One"}}

		store = portfoliotest.NewStore(&portfolio.Portfolio{
			ID: "p1", UserID: 1, Version: 1, Name: "first", IsActive: true, CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Holdings:             []portfolio.Holding{{AssetID: 1, Code: "A", Quantity: 10}, {AssetID: 2, Code: "B", Quantity: 20}},
			LowerBounds:          []float64{0, 0},
			UpperBounds:          []float64{1, 1},
			Weights:              []float64{0.5, 0.5},
			FictionalPerformance: portfolio.Performance{ExpectedReturn: 0.1, Volatility: 0.2, SharpeRatio: 0.5},
			FrontierPoints:       []portfolio.FrontierPoint{{ExpectedReturn: 0.1, Volatility: 0.2}},
		})
		store.Now = func() time.Time { return now }

		opt = &portfoliotest.Optimizer{}
		scanner = &fakeScanner{report: &portfolio.ScanReport{Evaluated: 1, Flagged: 1, Notified: 1}}
		svc := portfolio.NewService(store, catalog, opt, portfolio.Config{Ticks: 3}).WithClock(func() time.Time { return now })
		app = router.NewApp(handler.NewPortfolio(svc, scanner), "*")
	})

	It("answers health checks without a user", func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		resp, err := app.Test(req, -1)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
	})

	DescribeTable("rejects callers without a usable identity",
		func(userID string) {
			code, out := do(http.MethodGet, "/v1/portfolio/my", userID, "")
			Expect(code).To(Equal(fiber.StatusUnauthorized))
			Expect(out.Status).To(Equal(fiber.StatusUnauthorized))
		},
		Entry("missing header", ""),
		Entry("not a number", "abc"),
		Entry("not positive", "0"),
	)

	It("lists the caller's versions", func() {
		code, out := do(http.MethodGet, "/v1/portfolio/my", "1", "")
		Expect(code).To(Equal(fiber.StatusOK))
		versions := []portfolio.VersionInfo{}
		Expect(json.Unmarshal(out.Data, &versions)).To(Succeed())
		Expect(versions).To(HaveLen(1))
		Expect(versions[0].ID).To(Equal("p1"))
	})

	It("requires a portfolio id", func() {
		code, out := do(http.MethodGet, "/v1/portfolio/frontier", "1", "")
		Expect(code).To(Equal(fiber.StatusBadRequest))
		Expect(out.Message).To(ContainSubstring("portfolioId"))
	})

	It("returns the stored frontier", func() {
		code, out := do(http.MethodGet, "/v1/portfolio/frontier?portfolioId=p1", "1", "")
		Expect(code).To(Equal(fiber.StatusOK))
		frontier := portfolio.Frontier{}
		Expect(json.Unmarshal(out.Data, &frontier)).To(Succeed())
		Expect(frontier.FrontierPoints).To(HaveLen(1))
		Expect(frontier.FictionalPerformance.SharpeRatio).To(Equal(0.5))
	})

	It("hides another user's portfolio", func() {
		code, _ := do(http.MethodGet, "/v1/portfolio/frontier?portfolioId=p1", "2", "")
		Expect(code).To(Equal(fiber.StatusNotFound))
	})

	It("rejects an unknown time interval", func() {
		code, _ := do(http.MethodGet, "/v1/portfolio/valuation?portfolioId=p1&timeInterval=HOUR", "1", "")
		Expect(code).To(Equal(fiber.StatusBadRequest))
	})

	It("backtests with the default interval", func() {
		code, out := do(http.MethodGet, "/v1/portfolio/backtest?portfolioId=p1", "1", "")
		Expect(code).To(Equal(fiber.StatusOK))
		series := portfolio.Series{}
		Expect(json.Unmarshal(out.Data, &series)).To(Succeed())
		Expect(series.Interval).To(Equal(portfolio.IntervalDay))
		Expect(series.Measure).To(Equal(portfolio.MeasureProfit))
		Expect(series.Performances).To(HaveLen(3))
	})

	It("rejects a non numeric summary version", func() {
		code, _ := do(http.MethodGet, "/v1/portfolio/summary?ver=first", "1", "")
		Expect(code).To(Equal(fiber.StatusBadRequest))
	})

	It("reports a summary for an unknown user as not found", func() {
		code, _ := do(http.MethodGet, "/v1/portfolio/summary?ver=1", "9", "")
		Expect(code).To(Equal(fiber.StatusNotFound))
	})

	It("rejects a malformed construction request", func() {
		code, _ := do(http.MethodPost, "/v1/portfolio/init", "1", "{")
		Expect(code).To(Equal(fiber.StatusBadRequest))
		Expect(opt.Requests).To(BeEmpty())
	})

	It("reports solver failures as a bad gateway", func() {
		opt.Err = optimizer.ErrBadStatus
		body := `{"name":"n","totalCash":100000,"assetIds":[1,2],"lower_bounds":[0,0],"upper_bounds":[1,1]}`
		code, _ := do(http.MethodPost, "/v1/portfolio/init", "1", body)
		Expect(code).To(Equal(fiber.StatusBadGateway))
	})

	It("confirms a new version", func() {
		opt.Response = &optimizer.Response{
			Weights:              []float64{0.5, 0.5},
			FictionalPerformance: optimizer.Performance{ExpectedReturn: 0.1, Volatility: 0.05},
		}
		body := `{"name":"next","totalCash":100000,"assetIds":[1,2],"lower_bounds":[0,0],"upper_bounds":[1,1]}`
		code, out := do(http.MethodPost, "/v1/portfolio/confirm", "1", body)
		Expect(code).To(Equal(fiber.StatusCreated))

		created := portfolio.Portfolio{}
		Expect(json.Unmarshal(out.Data, &created)).To(Succeed())
		Expect(created.Version).To(Equal(2))
		Expect(created.Holdings).To(HaveLen(2))

		versions, err := store.ListByUser(context.Background(), 1)
		Expect(err).To(BeNil())
		Expect(versions.Active().ID).To(Equal(created.ID))
	})

	It("runs a scan on demand", func() {
		code, out := do(http.MethodPost, "/v1/portfolio/checking", "1", "")
		Expect(code).To(Equal(fiber.StatusOK))
		Expect(scanner.calls).To(Equal(1))
		report := portfolio.ScanReport{}
		Expect(json.Unmarshal(out.Data, &report)).To(Succeed())
		Expect(report.Notified).To(Equal(1))
	})
})

var _ = Describe("Error mapping", func() {
	DescribeTable("maps the error taxonomy to HTTP status codes",
		func(err error, code int) {
			Expect(handler.StatusFor(err)).To(Equal(code))
		},
		Entry("not found", portfolio.ErrPortfolioNotFound, fiber.StatusNotFound),
		Entry("invalid parameter", portfolio.ErrUnknownInterval, fiber.StatusBadRequest),
		Entry("insufficient history", portfolio.ErrMissingReturn, fiber.StatusUnprocessableEntity),
		Entry("division by zero", common.ErrDivisionByZero, fiber.StatusUnprocessableEntity),
		Entry("upstream", optimizer.ErrUnreachable, fiber.StatusBadGateway),
		Entry("corrupt version log", portfolio.ErrMultipleActive, fiber.StatusInternalServerError),
		Entry("unterminated version walk", portfolio.ErrWalkLimitExceeded, fiber.StatusInternalServerError),
		Entry("fiber error", fiber.ErrUnauthorized, fiber.StatusUnauthorized),
		Entry("anything else", errors.New("boom"), fiber.StatusInternalServerError),
	)
})
