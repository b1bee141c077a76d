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

package tradecron

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	AtOpen  = "@open"
	AtClose = "@close"
)

type MarketHours struct {
	Open  int
	Close int
}

var (
	// KRXHours are the regular session hours of the Korea Exchange
	KRXHours = MarketHours{
		Open:  900,
		Close: 1530,
	}
)

// maximum number of schedule activations inspected when looking for a trade day
const maxIters = 5000

type TradeCron struct {
	Schedule       cron.Schedule
	ScheduleString string
	TimeSpec       string
	TimeFlag       string
	calendar       *Calendar
}

// New creates a market aware schedule. It supports the standard CRON format of:
// Minutes(Min) Hours(H) DayOfMonth(DoM) Month(M) DayOfWeek(DoW)
//
// Trailing fields may be omitted and default to '*'. Activations that fall on a
// weekend or exchange holiday are skipped. Two modifiers are supported:
//
//	@open   - minutes and hours are relative to market open
//	@close  - minutes and hours are relative to market close
//
// Examples:
//   - weekday evenings: 0 18 * * 1-5
//   - 30 minutes after market close: @close 30 0
func New(cronSpec string, hours MarketHours, calendar *Calendar) (*TradeCron, error) {
	specParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	scheduleStr := expandBriefFormat(strings.TrimSpace(cronSpec))

	// separate special tokens from timespec
	timeSpecTokens := make([]string, 0, 5)
	specialTokens := make([]string, 0, 1)
	for _, token := range strings.Fields(scheduleStr) {
		if token[0] == '@' {
			specialTokens = append(specialTokens, token)
		} else {
			timeSpecTokens = append(timeSpecTokens, token)
		}
	}

	var timeSpec string
	var timeFlag string
	var err error
	for _, token := range specialTokens {
		if timeFlag != "" {
			return nil, ErrConflictingModifiers
		}
		switch token {
		case AtOpen:
			timeSpec, err = parseTimeRelativeTo(timeSpecTokens, hours.Open/100, hours.Open%100)
		case AtClose:
			timeSpec, err = parseTimeRelativeTo(timeSpecTokens, hours.Close/100, hours.Close%100)
		default:
			return nil, ErrUnknownModifier
		}
		if err != nil {
			return nil, err
		}
		timeFlag = token
	}

	if timeSpec == "" {
		timeSpec = strings.Join(timeSpecTokens, " ")
	}

	schedule, err := specParser.Parse(timeSpec)
	if err != nil {
		log.Error().Err(err).Str("TimeSpec", timeSpec).Str("TradeCronSpec", cronSpec).Msg("robfig/cron could not parse timespec")
		return nil, err
	}

	if calendar == nil {
		calendar = NewCalendar()
	}

	return &TradeCron{
		Schedule:       schedule,
		ScheduleString: cronSpec,
		TimeSpec:       timeSpec,
		TimeFlag:       timeFlag,
		calendar:       calendar,
	}, nil
}

// IsTradeDay returns true if forDate is a trading day on the schedule's calendar
func (tc *TradeCron) IsTradeDay(forDate time.Time) bool {
	return tc.calendar.IsTradeDay(forDate)
}

// Next returns the next activation after forDate that falls on a trading day
func (tc *TradeCron) Next(forDate time.Time) (time.Time, error) {
	checkDate := forDate
	for ii := 0; ii < maxIters; ii++ {
		checkDate = tc.Schedule.Next(checkDate)
		if checkDate.IsZero() {
			break
		}
		if tc.calendar.IsTradeDay(checkDate) {
			return checkDate, nil
		}
	}

	log.Error().Str("TimeSpec", tc.TimeSpec).Time("ForDate", forDate).Msg("tradecron schedule never activates on a trading day")
	return time.Time{}, ErrNoTradeDay
}
