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
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	UserIDHeader = "X-User-Id"
	userIDKey    = "userID"
)

// Identity trusts the upstream gateway to authenticate the caller and reads the numeric
// user id it forwards in the X-User-Id header
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(UserIDHeader)
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user id")
		}

		userID, err := strconv.Atoi(raw)
		if err != nil || userID <= 0 {
			log.Warn().Str("UserID", raw).Msg("malformed user id header")
			return fiber.NewError(fiber.StatusUnauthorized, "malformed user id")
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// UserID returns the id stored by Identity, 0 when the route is not behind it
func UserID(c *fiber.Ctx) int {
	userID, _ := c.Locals(userIDKey).(int)
	return userID
}
