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

// Package messenger delivers rebalance notifications to users
package messenger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mutualrisk/mr-api/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrSendFailed    = fmt.Errorf("notification delivery failed: %w", common.ErrUpstream)
	ErrUnknownDriver = errors.New("unknown notification driver")
	ErrGenerateHash  = errors.New("could not create message hash")
)

const (
	DriverSendGrid = "sendgrid"
	DriverNats     = "nats"
	DriverLog      = "log"
)

// Dispatcher sends a message to a single recipient
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

// FromConfig builds the dispatcher selected by notify.driver wrapped in a rate limited
// dispatcher. The returned close function releases any connection it opened.
func FromConfig() (Dispatcher, func(), error) {
	driver := viper.GetString("notify.driver")
	timeout := viper.GetDuration("notify.timeout")
	rps := viper.GetFloat64("notify.rate_limit")

	subLog := log.With().Str("Driver", driver).Dur("Timeout", timeout).Float64("RateLimit", rps).Logger()

	var (
		next    Dispatcher
		closeFn = func() {}
	)

	switch driver {
	case DriverSendGrid, "":
		next = NewSendGrid(SendGridConfig{
			APIKey:      viper.GetString("sendgrid.apikey"),
			Host:        viper.GetString("sendgrid.host"),
			FromName:    viper.GetString("email.name"),
			FromAddress: viper.GetString("email.address"),
			Timeout:     timeout,
		})
	case DriverNats:
		conn, js, err := ConnectNats(viper.GetString("nats.server"), viper.GetString("nats.credentials"))
		if err != nil {
			return nil, nil, err
		}
		next = NewNats(js, viper.GetString("nats.alerts_subject"))
		closeFn = conn.Close
	case DriverLog:
		next = &Log{}
	default:
		subLog.Error().Msg("unknown notification driver")
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	subLog.Info().Msg("notification dispatcher configured")
	return NewLimited(next, rps, timeout), closeFn, nil
}
