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

package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/middleware"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/rs/zerolog/log"
)

// Scanner runs one rebalance scan over every user
type Scanner interface {
	ScanAll(ctx context.Context) (*portfolio.ScanReport, error)
}

// Portfolio serves the /v1/portfolio routes
type Portfolio struct {
	svc     *portfolio.Service
	scanner Scanner
}

func NewPortfolio(svc *portfolio.Service, scanner Scanner) *Portfolio {
	return &Portfolio{
		svc:     svc,
		scanner: scanner,
	}
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(envelope{Status: fiber.StatusOK, Message: "success", Data: data})
}

func portfolioID(c *fiber.Ctx) (string, error) {
	id := c.Query("portfolioId")
	if id == "" {
		return "", fmt.Errorf("%w: portfolioId", ErrMissingParameter)
	}
	return id, nil
}

func intervalAndMeasure(c *fiber.Ctx, defaultMeasure portfolio.Measure) (portfolio.Interval, portfolio.Measure, error) {
	interval, err := portfolio.ParseInterval(c.Query("timeInterval", string(portfolio.IntervalDay)))
	if err != nil {
		return "", "", err
	}
	measure, err := portfolio.ParseMeasure(c.Query("measure", string(defaultMeasure)))
	if err != nil {
		return "", "", err
	}
	return interval, measure, nil
}

// Mine lists every portfolio version of the caller
func (h *Portfolio) Mine(c *fiber.Ctx) error {
	versions, err := h.svc.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, versions)
}

func (h *Portfolio) Detail(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.Detail(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, detail)
}

func (h *Portfolio) Summary(c *fiber.Ctx) error {
	raw := c.Query("ver")
	if raw == "" {
		return fmt.Errorf("%w: ver", ErrMissingParameter)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: ver must be an integer", common.ErrInvalidParameter)
	}
	summary, err := h.svc.Summary(c.UserContext(), middleware.UserID(c), version)
	if err != nil {
		return err
	}
	return ok(c, summary)
}

func (h *Portfolio) Backtest(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	interval, measure, err := intervalAndMeasure(c, portfolio.MeasureProfit)
	if err != nil {
		return err
	}
	series, err := h.svc.Backtest(c.UserContext(), middleware.UserID(c), id, interval, measure)
	if err != nil {
		return err
	}
	return ok(c, series)
}

func (h *Portfolio) Sector(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	sectors, err := h.svc.Sector(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, sectors)
}

func (h *Portfolio) Frontier(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	frontier, err := h.svc.Frontier(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, frontier)
}

func (h *Portfolio) Valuation(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	interval, measure, err := intervalAndMeasure(c, portfolio.MeasureValuation)
	if err != nil {
		return err
	}
	series, err := h.svc.HistoricalValuation(c.UserContext(), middleware.UserID(c), id, interval, measure)
	if err != nil {
		return err
	}
	return ok(c, series)
}

// MonthlyReturn always reports month over month returns
func (h *Portfolio) MonthlyReturn(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	if _, err := portfolio.ParseMeasure(c.Query("measure", string(portfolio.MeasureProfit))); err != nil {
		return err
	}
	returns, err := h.svc.HistoricalReturns(c.UserContext(), middleware.UserID(c), id, portfolio.IntervalMonth)
	if err != nil {
		return err
	}
	return ok(c, returns)
}

func (h *Portfolio) Assets(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}
	assets, err := h.svc.AssetInfos(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, assets)
}

// Init previews the portfolio the solver recommends without storing it
func (h *Portfolio) Init(c *fiber.Ctx) error {
	req := portfolio.Request{}
	if err := c.BodyParser(&req); err != nil {
		log.Warn().Err(err).Msg("could not parse portfolio request")
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	analysis, err := h.svc.Analyze(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return ok(c, analysis)
}

// Confirm stores a new portfolio version for the caller
func (h *Portfolio) Confirm(c *fiber.Ctx) error {
	req := portfolio.Request{}
	if err := c.BodyParser(&req); err != nil {
		log.Warn().Err(err).Msg("could not parse portfolio request")
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	stored, err := h.svc.Confirm(c.UserContext(), middleware.UserID(c), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(envelope{Status: fiber.StatusCreated, Message: "created", Data: stored})
}

// Checking runs one rebalance scan and reports the outcome
func (h *Portfolio) Checking(c *fiber.Ctx) error {
	report, err := h.scanner.ScanAll(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, report)
}
