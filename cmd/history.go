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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/dataframe"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	historyCmdUserID      int
	historyCmdPortfolioID string
	historyCmdInterval    string
	historyCmdMeasure     string
	historyCmdBacktest    bool
)

func init() {
	historyCmd.Flags().IntVar(&historyCmdUserID, "user", 0, "owner of the portfolio")
	historyCmd.Flags().StringVar(&historyCmdPortfolioID, "portfolio", "", "portfolio id")
	historyCmd.Flags().StringVar(&historyCmdInterval, "interval", string(portfolio.IntervalDay), "one of DAY, WEEK, MONTH or YEAR")
	historyCmd.Flags().StringVar(&historyCmdMeasure, "measure", string(portfolio.MeasureValuation), "VALUATION or PROFIT")
	historyCmd.Flags().BoolVar(&historyCmdBacktest, "backtest", false, "value the selected version's holdings instead of walking the version history")

	historyCmd.MarkFlagRequired("user")
	historyCmd.MarkFlagRequired("portfolio")

	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the valuation history of a portfolio",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		interval, err := portfolio.ParseInterval(historyCmdInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid interval")
		}
		measure, err := portfolio.ParseMeasure(historyCmdMeasure)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid measure")
		}

		backend, err := connectBackend(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect backend")
		}
		defer backend.Close(context.Background())

		var series *portfolio.Series
		if historyCmdBacktest {
			series, err = backend.service.Backtest(ctx, historyCmdUserID, historyCmdPortfolioID, interval, measure)
		} else {
			series, err = backend.service.HistoricalValuation(ctx, historyCmdUserID, historyCmdPortfolioID, interval, measure)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("could not build history")
		}

		df, err := seriesFrame(series)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build dataframe")
		}
		fmt.Println(df.Table())
	},
}

func seriesFrame(series *portfolio.Series) (*dataframe.DataFrame, error) {
	dates := make([]time.Time, len(series.Performances))
	vals := make([]float64, len(series.Performances))
	for idx, pt := range series.Performances {
		dates[idx] = pt.Time
		vals[idx] = pt.Valuation
	}
	return dataframe.New(string(series.Measure), dates, vals)
}
