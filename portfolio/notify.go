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
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/rs/zerolog"
)

// DefaultDeviationThreshold is the drift in percentage points from the recorded weight
// that triggers an alert
const DefaultDeviationThreshold = 10.0

// Flags lists the codes of assets whose current weight breaks a rebalance rule
type Flags struct {
	LowerBoundBreached []string
	UpperBoundBreached []string
	WeightIncreased    []string
	WeightDecreased    []string
}

// Any reports whether at least one asset was flagged
func (f Flags) Any() bool {
	return len(f.LowerBoundBreached)+len(f.UpperBoundBreached)+len(f.WeightIncreased)+len(f.WeightDecreased) > 0
}

func (f Flags) MarshalZerologObject(e *zerolog.Event) {
	e.Strs("LowerBoundBreached", f.LowerBoundBreached).
		Strs("UpperBoundBreached", f.UpperBoundBreached).
		Strs("WeightIncreased", f.WeightIncreased).
		Strs("WeightDecreased", f.WeightDecreased)
}

// CheckDeviation compares current weights (fractions, in holding order) against the
// bounds and weights recorded on p. Everything is compared on a 0-100 percent scale.
func CheckDeviation(p *Portfolio, current []float64, threshold float64) Flags {
	flags := Flags{}
	for idx, holding := range p.Holdings {
		if idx >= len(current) || idx >= len(p.LowerBounds) || idx >= len(p.UpperBounds) || idx >= len(p.Weights) {
			break
		}

		cur := current[idx] * 100
		lower := p.LowerBounds[idx] * 100
		upper := p.UpperBounds[idx] * 100
		recorded := p.Weights[idx] * 100

		if cur < lower {
			flags.LowerBoundBreached = append(flags.LowerBoundBreached, holding.Code)
		} else if cur > upper {
			flags.UpperBoundBreached = append(flags.UpperBoundBreached, holding.Code)
		}

		if cur-recorded > threshold {
			flags.WeightIncreased = append(flags.WeightIncreased, holding.Code)
		} else if recorded-cur > threshold {
			flags.WeightDecreased = append(flags.WeightDecreased, holding.Code)
		}
	}
	return flags
}

// Alert is the rebalance message sent to a user
type Alert struct {
	UserName  string
	Portfolio *Portfolio
	Flags     Flags
	Total     float64
}

// Compose renders the alert's subject and plain text body
func (a *Alert) Compose() (subject, body string) {
	subject = fmt.Sprintf("[MutualRisk] Time to rebalance %s", a.Portfolio.Name)

	sb := strings.Builder{}
	name := a.UserName
	if name == "" {
		name = "investor"
	}
	fmt.Fprintf(&sb, "Hello %s,\n\n", name)
	fmt.Fprintf(&sb, "Your portfolio %q (version %d) has drifted from its target allocation.\n", a.Portfolio.Name, a.Portfolio.Version)
	fmt.Fprintf(&sb, "Current valuation: %s\n\n", money.NewFromFloat(a.Total, money.KRW).Display())

	writeSection(&sb, "Below the lower bound", a.Flags.LowerBoundBreached)
	writeSection(&sb, "Above the upper bound", a.Flags.UpperBoundBreached)
	writeSection(&sb, "Weight increased significantly", a.Flags.WeightIncreased)
	writeSection(&sb, "Weight decreased significantly", a.Flags.WeightDecreased)

	sb.WriteString("Visit MutualRisk to review a new allocation.\n")
	return subject, sb.String()
}

func writeSection(sb *strings.Builder, title string, codes []string) {
	if len(codes) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n\n", title, strings.Join(codes, ", "))
}
