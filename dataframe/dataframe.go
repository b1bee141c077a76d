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

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// New creates a single column dataframe
func New(name string, dates []time.Time, vals []float64) (*DataFrame, error) {
	if len(dates) != len(vals) {
		return nil, ErrLengthMismatch
	}
	return &DataFrame{
		Dates:    dates,
		ColNames: []string{name},
		Vals:     [][]float64{vals},
	}, nil
}

// Get index of specified column; returns -1 if column doesn't exist
func (df *DataFrame) ColIndex(colName string) int {
	for idx, val := range df.ColNames {
		if colName == val {
			return idx
		}
	}

	return -1
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// Column returns the values of colName or nil if the column does not exist
func (df *DataFrame) Column(colName string) []float64 {
	idx := df.ColIndex(colName)
	if idx == -1 {
		return nil
	}
	return df.Vals[idx]
}

// Copy creates a copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    make([]time.Time, len(df.Dates)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.ColNames, df.ColNames)
	copy(df2.Dates, df.Dates)

	for idx := range df2.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// Start returns the first date of the dataframe
func (df *DataFrame) Start() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[0]
}

// End returns the last time in the DataFrame
func (df *DataFrame) End() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[len(df.Dates)-1]
}

func periodKey(dt time.Time, frequency Frequency) int {
	switch frequency {
	case Weekly:
		year, week := dt.ISOWeek()
		return year*100 + week
	case Monthly:
		return dt.Year()*100 + int(dt.Month())
	case Annually:
		return dt.Year()
	default:
		return dt.Year()*10000 + int(dt.Month())*100 + dt.Day()
	}
}

// Frequency returns a copy of the dataframe keeping only the last row of each period
func (df *DataFrame) Frequency(frequency Frequency) (*DataFrame, error) {
	switch frequency {
	case Daily:
		return df.Copy(), nil
	case Weekly, Monthly, Annually:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrequency, frequency)
	}

	keep := make([]int, 0, len(df.Dates))
	for idx, dt := range df.Dates {
		if idx+1 == len(df.Dates) || periodKey(df.Dates[idx+1], frequency) != periodKey(dt, frequency) {
			keep = append(keep, idx)
		}
	}

	newDf := &DataFrame{
		Dates:    make([]time.Time, 0, len(keep)),
		ColNames: df.ColNames,
		Vals:     make([][]float64, len(df.ColNames)),
	}
	for _, idx := range keep {
		newDf.Dates = append(newDf.Dates, df.Dates[idx])
		for colIdx := range newDf.Vals {
			newDf.Vals[colIdx] = append(newDf.Vals[colIdx], df.Vals[colIdx][idx])
		}
	}

	return newDf, nil
}

// Trim the dataframe to the specified date range (inclusive)
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	df2 := &DataFrame{
		ColNames: df.ColNames,
		Dates:    []time.Time{},
		Vals:     make([][]float64, len(df.ColNames)),
	}

	if end.Before(begin) || df.Len() == 0 {
		return df2
	}

	// Use binary search to find the index corresponding to the start and end times
	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})

	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(end)
	})

	if beginIdx >= endIdx {
		return df2
	}

	df2.Dates = df.Dates[beginIdx:endIdx]
	for colIdx, col := range df.Vals {
		df2.Vals[colIdx] = col[beginIdx:endIdx]
	}

	return df2
}

// Table renders an ASCII formatted table
func (df *DataFrame) Table() string {
	if len(df.Dates) == 0 {
		return "<NO DATA>"
	}

	tableCols := append([]string{"Date"}, df.ColNames...)

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(tableCols)
	footer := make([]string, len(tableCols))
	footer[0] = "Num Rows"
	if len(footer) > 1 {
		footer[1] = fmt.Sprintf("%d", df.Len())
	}
	table.SetFooter(footer)
	table.SetBorder(false)

	for idx, date := range df.Dates {
		row := make([]string, 0, len(df.Vals)+1)
		row = append(row, date.Format("2006-01-02"))
		for _, col := range df.Vals {
			row = append(row, fmt.Sprintf("%.4f", col[idx]))
		}
		table.Append(row)
	}

	table.Render()
	return s.String()
}
