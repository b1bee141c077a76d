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

package dataframe

import "time"

func dateKey(dt time.Time) int {
	return dt.Year()*10000 + int(dt.Month())*100 + dt.Day()
}

// InnerJoin combines dfs column by column keeping only the dates present in every
// dataframe. Columns keep the order of dfs; dates must be ascending in each input.
func InnerJoin(dfs ...*DataFrame) *DataFrame {
	res := &DataFrame{
		Dates:    []time.Time{},
		ColNames: []string{},
		Vals:     [][]float64{},
	}

	if len(dfs) == 0 {
		return res
	}

	counts := make(map[int]int, dfs[0].Len())
	for _, df := range dfs {
		seen := make(map[int]bool, df.Len())
		for _, dt := range df.Dates {
			key := dateKey(dt)
			if !seen[key] {
				seen[key] = true
				counts[key]++
			}
		}
	}

	for _, dt := range dfs[0].Dates {
		if counts[dateKey(dt)] == len(dfs) {
			res.Dates = append(res.Dates, dt)
		}
	}

	for _, df := range dfs {
		rowOf := make(map[int]int, df.Len())
		for idx, dt := range df.Dates {
			rowOf[dateKey(dt)] = idx
		}

		for colIdx, colName := range df.ColNames {
			col := make([]float64, len(res.Dates))
			for ii, dt := range res.Dates {
				col[ii] = df.Vals[colIdx][rowOf[dateKey(dt)]]
			}
			res.ColNames = append(res.ColNames, colName)
			res.Vals = append(res.Vals, col)
		}
	}

	return res
}
