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
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/mutualrisk/mr-api/common"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingParameter = fmt.Errorf("missing query parameter: %w", common.ErrInvalidParameter)
	ErrMalformedBody    = fmt.Errorf("malformed request body: %w", common.ErrInvalidParameter)
)

// envelope wraps every response body
type envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusFor maps an error to the HTTP status reported to the caller
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, common.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrInvalidParameter):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrInsufficientHistory), errors.Is(err, common.ErrDivisionByZero):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, common.ErrUpstream):
		return fiber.StatusBadGateway
	case errors.Is(err, common.ErrDataIntegrity):
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders handler errors as an envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		log.Error().Stack().Err(err).Str("Path", c.Path()).Msg("unhandled error")
		msg = "internal server error"
	}
	return c.Status(code).JSON(envelope{Status: code, Message: msg})
}
