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
	"github.com/mutualrisk/mr-api/messenger"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	scanCmdUserID int
	scanCmdDryRun bool
	scanCmdForce  bool
)

func init() {
	scanCmd.Flags().IntVar(&scanCmdUserID, "user", 0, "only scan the portfolio of this user id")
	scanCmd.Flags().BoolVar(&scanCmdDryRun, "dry-run", false, "log notifications instead of delivering them")
	scanCmd.Flags().BoolVar(&scanCmdForce, "force", false, "scan even when the exchange is closed")

	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check portfolios for drift and notify users",
	Long:  `Evaluate every user's active portfolio against its bounds and original weights and send a rebalance notice to users whose allocation drifted`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		backend, err := connectBackend(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect backend")
		}
		defer backend.Close(context.Background())

		if !scanCmdForce {
			schedule, err := backend.tradeSchedule(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("could not load trading calendar")
			}
			today := time.Now().In(common.GetTimezone())
			if !schedule.IsTradeDay(today) {
				log.Warn().Time("Today", today).Msg("exchange is closed today; use --force to scan anyway")
				return
			}
		}

		var notifier messenger.Dispatcher = &messenger.Log{}
		if !scanCmdDryRun {
			dispatcher, closeNotifier, err := messenger.FromConfig()
			if err != nil {
				log.Fatal().Err(err).Msg("could not configure notifications")
			}
			defer closeNotifier()
			notifier = dispatcher
		}

		scanner := backend.newScanner(notifier)

		var report *portfolio.ScanReport
		if scanCmdUserID != 0 {
			report, err = scanner.ScanUser(ctx, scanCmdUserID)
		} else {
			report, err = scanner.ScanAll(ctx)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("rebalance scan failed")
		}

		fmt.Printf("evaluated %d, skipped %d, flagged %d, notified %d, failed %d in %s\n",
			report.Evaluated, report.Skipped, report.Flagged, report.Notified, report.Failed, report.Duration)
	},
}
