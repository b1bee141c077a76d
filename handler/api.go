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
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type PingResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message" example:"API is alive"`
	Time    string `json:"time" example:"2021-06-19T08:09:10.115924-05:00"`
}

// Health reports that the API is up
func Health(c *fiber.Ctx) error {
	now, err := time.Now().MarshalText()
	if err != nil {
		log.Error().Stack().Err(err).Msg("error while getting time in health check")
		return c.JSON(PingResponse{
			Status:  "error",
			Message: err.Error(),
			Time:    string(now),
		})
	}
	return c.JSON(PingResponse{
		Status:  "success",
		Message: "API is alive",
		Time:    string(now),
	})
}
