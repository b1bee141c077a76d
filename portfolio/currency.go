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

import "github.com/mutualrisk/mr-api/data"

// RegionConverter turns prices quoted in an asset's home currency into KRW. Rate is
// the number of KRW per USD.
type RegionConverter struct {
	Rate float64
}

// Factor returns the multiplier applied to prices of assets in region
func (rc RegionConverter) Factor(region data.Region) float64 {
	if region == data.RegionForeign {
		return rc.Rate
	}
	return 1
}

// Convert returns amount expressed in KRW
func (rc RegionConverter) Convert(region data.Region, amount float64) float64 {
	return amount * rc.Factor(region)
}
