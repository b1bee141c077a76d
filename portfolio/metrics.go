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

package portfolio

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// DrawDown is a fall from a previous peak. Recovery is nil when the series never
// climbed back to the peak.
type DrawDown struct {
	Begin       time.Time  `json:"begin"`
	End         time.Time  `json:"end"`
	Recovery    *time.Time `json:"recovery"`
	LossPercent float64    `json:"lossPercent"`
}

// SeriesStats summarizes a valuation series. Returns are in percent per tick.
type SeriesStats struct {
	TotalReturn  float64     `json:"totalReturn"`
	MeanReturn   float64     `json:"meanReturn"`
	StdDev       float64     `json:"stdDev"`
	Skew         float64     `json:"skew"`
	MaxDrawDown  *DrawDown   `json:"maxDrawDown"`
	AllDrawDowns []*DrawDown `json:"-"`
}

func (s *SeriesStats) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("TotalReturn", s.TotalReturn).
		Float64("MeanReturn", s.MeanReturn).
		Float64("StdDev", s.StdDev).
		Int("NumDrawDowns", len(s.AllDrawDowns))
	if s.MaxDrawDown != nil {
		e.Float64("MaxDrawDown", s.MaxDrawDown.LossPercent)
	}
}

// periodReturns returns the percent change between consecutive points. Steps starting
// from a zero valuation are skipped.
func periodReturns(points []Point) []float64 {
	rets := make([]float64, 0, len(points))
	for idx := 1; idx < len(points); idx++ {
		ret, err := PercentChange(points[idx-1].Valuation, points[idx].Valuation)
		if err != nil {
			continue
		}
		rets = append(rets, ret)
	}
	return rets
}

// AllDrawDowns finds every fall from a previous peak in points, oldest first
func AllDrawDowns(points []Point) []*DrawDown {
	allDrawDowns := []*DrawDown{}
	if len(points) < 2 {
		return allDrawDowns
	}

	peak := points[0].Valuation
	prev := points[0].Time
	var drawDown *DrawDown
	for _, pt := range points {
		peak = math.Max(peak, pt.Valuation)
		if pt.Valuation < peak && peak > 0 {
			loss := (pt.Valuation/peak - 1.0) * 100
			if drawDown == nil {
				drawDown = &DrawDown{
					Begin:       prev,
					End:         pt.Time,
					LossPercent: loss,
				}
			}
			if loss < drawDown.LossPercent {
				drawDown.End = pt.Time
				drawDown.LossPercent = loss
			}
		} else if drawDown != nil {
			recovery := pt.Time
			drawDown.Recovery = &recovery
			allDrawDowns = append(allDrawDowns, drawDown)
			drawDown = nil
		}
		prev = pt.Time
	}

	if drawDown != nil {
		allDrawDowns = append(allDrawDowns, drawDown)
	}
	return allDrawDowns
}

// MaxDrawDown returns the deepest draw down in points or nil if it never fell
func MaxDrawDown(points []Point) *DrawDown {
	var deepest *DrawDown
	for _, dd := range AllDrawDowns(points) {
		if deepest == nil || dd.LossPercent < deepest.LossPercent {
			deepest = dd
		}
	}
	return deepest
}

// Stats summarizes points, which must be ordered oldest first
func Stats(points []Point) *SeriesStats {
	stats := &SeriesStats{}
	if len(points) == 0 {
		return stats
	}

	if total, err := PercentChange(points[0].Valuation, points[len(points)-1].Valuation); err == nil {
		stats.TotalReturn = total
	}

	rets := periodReturns(points)
	if len(rets) > 0 {
		stats.MeanReturn = stat.Mean(rets, nil)
	}
	if len(rets) > 1 {
		stats.StdDev = stat.StdDev(rets, nil)
	}
	if len(rets) > 2 && stats.StdDev > 0 {
		stats.Skew = stat.Skew(rets, nil)
	}

	stats.AllDrawDowns = AllDrawDowns(points)
	stats.MaxDrawDown = MaxDrawDown(points)
	return stats
}
