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

package pgxmockhelper

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
)

// CSVRows loads mock query results from a CSV file. Column conversions are selected
// with a type map keyed by column name: "date", "int", "float64" and "*float64"
// (an empty cell is NULL). Other columns are passed through as strings.
type CSVRows struct {
	rows    [][]any
	header  []string
	dateCol int
}

func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	rows := &CSVRows{
		dateCol: -1,
		rows:    make([][]any, 0),
	}
	rawData, err := os.ReadFile(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}

	// break raw data into an array of lines
	lines := strings.Split(string(rawData), "\n")

	// sanity checks:
	// - array length is at least 2 (header + trailing newline)
	// - make sure last line ends in newline
	if len(lines) < 2 {
		subLog.Panic().Int("NumLines", len(lines)).Msg("input file does not have enough lines, need at least 2 (header + trailing new line)")
	}
	if lines[len(lines)-1] != "" {
		subLog.Panic().Msg("input file is missing a trailing new line")
	}

	rows.header = strings.Split(lines[0], ",")
	lines = lines[1 : len(lines)-1] // discard header and trailing newline

	for _, ll := range lines {
		cols := make([]any, len(rows.header))
		parts := strings.Split(ll, ",")
		for idx, val := range parts {
			colName := rows.header[idx]
			switch typeMap[colName] {
			case "date":
				parsed, err := time.Parse("2006-01-02", val)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to datetime of format 2006-01-02")
				}
				cols[idx] = parsed
				rows.dateCol = idx
			case "int":
				parsed, err := strconv.Atoi(val)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to int")
				}
				cols[idx] = parsed
			case "float64":
				parsed, err := strconv.ParseFloat(val, 64)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
				}
				cols[idx] = parsed
			case "*float64":
				if val == "" {
					cols[idx] = (*float64)(nil)
					continue
				}
				parsed, err := strconv.ParseFloat(val, 64)
				if err != nil {
					subLog.Panic().Err(err).Str("Val", val).Msg("could not convert val to float64")
				}
				cols[idx] = &parsed
			default:
				cols[idx] = val
			}
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

// Between keeps rows whose date column falls within [a, b]
func (csvRows *CSVRows) Between(a time.Time, b time.Time) *CSVRows {
	newRows := make([][]any, 0, len(csvRows.rows))
	if len(csvRows.rows) == 0 {
		return csvRows
	}
	if csvRows.dateCol == -1 {
		log.Panic().Time("a", a).Time("b", b).Msg("no date column found")
	}
	for _, row := range csvRows.rows {
		t := row[csvRows.dateCol].(time.Time)
		if (t.Before(b) || t.Equal(b)) && (t.After(a) || t.Equal(a)) {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

// WhereIn keeps rows whose integer column col is one of ids
func (csvRows *CSVRows) WhereIn(col string, ids []int) *CSVRows {
	colIdx := -1
	for idx, name := range csvRows.header {
		if name == col {
			colIdx = idx
		}
	}
	if colIdx == -1 {
		log.Panic().Str("Col", col).Msg("column not found")
	}

	keep := make(map[int]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	newRows := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		if keep[row[colIdx].(int)] {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

// LatestPer keeps only the newest row for each value of the integer column col
func (csvRows *CSVRows) LatestPer(col string) *CSVRows {
	colIdx := -1
	for idx, name := range csvRows.header {
		if name == col {
			colIdx = idx
		}
	}
	if colIdx == -1 || csvRows.dateCol == -1 {
		log.Panic().Str("Col", col).Msg("column not found")
	}

	latest := make(map[int]int)
	order := make([]int, 0)
	for rowIdx, row := range csvRows.rows {
		key := row[colIdx].(int)
		prev, ok := latest[key]
		if !ok {
			order = append(order, key)
			latest[key] = rowIdx
			continue
		}
		if row[csvRows.dateCol].(time.Time).After(csvRows.rows[prev][csvRows.dateCol].(time.Time)) {
			latest[key] = rowIdx
		}
	}

	newRows := make([][]any, 0, len(order))
	for _, key := range order {
		newRows = append(newRows, csvRows.rows[latest[key]])
	}
	csvRows.rows = newRows
	return csvRows
}

func (csvRows *CSVRows) Len() int {
	return len(csvRows.rows)
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}
