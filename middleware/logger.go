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

package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger creates a middleware that logs one event per request
func NewLogger() fiber.Handler {
	var (
		once       sync.Once
		errHandler fiber.ErrorHandler
	)

	return func(c *fiber.Ctx) error {
		once.Do(func() {
			errHandler = c.App().Config().ErrorHandler
		})

		start := time.Now()

		// the error handler runs here so the logged status is final
		if chainErr := c.Next(); chainErr != nil {
			if err := errHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		code := c.Response().StatusCode()

		var event *zerolog.Event
		msg := "processed HTTP request"
		switch {
		case code >= fiber.StatusOK && code < fiber.StatusMultipleChoices:
			event = log.Info()
		case code >= fiber.StatusMultipleChoices && code < fiber.StatusBadRequest:
			event = log.Info()
			msg = "forward HTTP request"
		case code >= fiber.StatusBadRequest && code < fiber.StatusInternalServerError:
			event = log.Warn()
			msg = "bad HTTP request"
		default:
			event = log.Error()
			msg = "internal server error"
		}

		event.Int("StatusCode", code).
			Dur("Latency", time.Since(start).Round(time.Millisecond)).
			Str("IP", c.IP()).
			Str("Method", c.Method()).
			Str("Path", c.Path()).
			Str("Route", c.Route().Path).
			Str("UserAgent", c.Get(fiber.HeaderUserAgent)).
			Str("XForwardedFor", c.Get(fiber.HeaderXForwardedFor)).
			Str("QueryStringParams", c.Request().URI().QueryArgs().String()).
			Int("UserID", UserID(c)).
			Int("NumBytesReceived", len(c.Request().Body())).
			Int("NumBytesSent", len(c.Response().Body())).
			Msg(msg)

		return nil
	}
}
