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
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HolidaySource loads exchange holidays, typically from the market_holidays table
type HolidaySource interface {
	MarketHolidays(ctx context.Context, begin, end time.Time) ([]time.Time, error)
}

// Calendar knows which dates the exchange is open. Weekends are never trade days.
type Calendar struct {
	mu       sync.RWMutex
	holidays map[int]bool
}

func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// NewCalendar creates a calendar with the given holidays
func NewCalendar(holidays ...time.Time) *Calendar {
	cal := &Calendar{
		holidays: make(map[int]bool, len(holidays)),
	}
	cal.Add(holidays...)
	return cal
}

// LoadCalendar builds a calendar from the holidays src reports for the years around now
func LoadCalendar(ctx context.Context, src HolidaySource, now time.Time) (*Calendar, error) {
	begin := time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year()+1, time.December, 31, 0, 0, 0, 0, now.Location())

	holidays, err := src.MarketHolidays(ctx, begin, end)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not load market holidays")
		return nil, err
	}

	log.Info().Int("NumHolidays", len(holidays)).Time("Begin", begin).Time("End", end).Msg("loaded market holidays")
	return NewCalendar(holidays...), nil
}

// Add marks each date as an exchange holiday
func (cal *Calendar) Add(holidays ...time.Time) {
	cal.mu.Lock()
	defer cal.mu.Unlock()
	for _, day := range holidays {
		cal.holidays[dateKey(day)] = true
	}
}

// IsMarketHoliday returns true if the specified date is a market holiday
func (cal *Calendar) IsMarketHoliday(t time.Time) bool {
	cal.mu.RLock()
	defer cal.mu.RUnlock()
	return cal.holidays[dateKey(t)]
}

// IsTradeDay returns true if the specified date is a valid trading day (i.e. not a market holiday or weekend)
func (cal *Calendar) IsTradeDay(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !cal.IsMarketHoliday(t)
}

// PreviousTradeDay returns the closest trade day strictly before t
func (cal *Calendar) PreviousTradeDay(t time.Time) time.Time {
	prev := t.AddDate(0, 0, -1)
	for !cal.IsTradeDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}
