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

package router

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/handler"
	"github.com/mutualrisk/mr-api/middleware"
)

// NewApp builds the fiber application with logging, CORS and every route registered
func NewApp(h *handler.Portfolio, allowOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               common.ProgramName,
		ErrorHandler:          handler.ErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "*",
		AllowMethods: "GET,POST,HEAD",
	}))
	app.Use(middleware.NewLogger())
	app.Use(middleware.NewTracer())

	SetupRoutes(app, h)
	return app
}

// SetupRoutes registers the v1 API
func SetupRoutes(app *fiber.App, h *handler.Portfolio) {
	api := app.Group("/v1")
	api.Get("/health", handler.Health)

	// Portfolio
	portfolio := api.Group("/portfolio", middleware.Identity())
	portfolio.Get("/my", h.Mine)
	portfolio.Get("/detail", h.Detail)
	portfolio.Get("/summary", h.Summary)
	portfolio.Get("/backtest", h.Backtest)
	portfolio.Get("/sector", h.Sector)
	portfolio.Get("/frontier", h.Frontier)
	portfolio.Get("/valuation", h.Valuation)
	portfolio.Get("/monthly-return", h.MonthlyReturn)
	portfolio.Get("/assets", h.Assets)
	portfolio.Post("/init", h.Init)
	portfolio.Post("/confirm", h.Confirm)
	portfolio.Post("/checking", h.Checking)
}
