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
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/mutualrisk/mr-api/common"
	"github.com/mutualrisk/mr-api/handler"
	"github.com/mutualrisk/mr-api/messenger"
	"github.com/mutualrisk/mr-api/observability/opentelemetry"
	"github.com/mutualrisk/mr-api/portfolio"
	"github.com/mutualrisk/mr-api/router"
	"github.com/mutualrisk/mr-api/tradecron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	serveCmd.Flags().String("allow-origins", "http://localhost:3000", "Comma separated list of origins allowed by CORS")
	viper.BindPFlag("server.allow_origins", serveCmd.Flags().Lookup("allow-origins"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mrapi server",
	Long:  `Run the HTTP server that implements the MutualRisk portfolio API and schedule the rebalance scan`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		shutdownTracing, err := opentelemetry.Setup()
		if err != nil {
			log.Fatal().Err(err).Msg("could not configure tracing")
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Error().Err(err).Msg("could not flush traces")
			}
		}()

		backend, err := connectBackend(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect backend")
		}
		defer backend.Close(context.Background())

		notifier, closeNotifier, err := messenger.FromConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("could not configure notifications")
		}
		defer closeNotifier()

		scanner := backend.newScanner(notifier)

		schedule, err := backend.tradeSchedule(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build rebalance schedule")
		}
		scheduler, err := scheduleScan(scanner, schedule)
		if err != nil {
			log.Fatal().Err(err).Msg("could not schedule rebalance scan")
		}
		defer scheduler.Stop()

		app := router.NewApp(handler.NewPortfolio(backend.service, scanner), viper.GetString("server.allow_origins"))

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c
			fmt.Printf("Received signal: '%s'; shutting down...\n", sig.String())
			if err := app.Shutdown(); err != nil {
				log.Error().Err(err).Msg("could not shutdown server")
			}
		}()

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	},
}

// scheduleScan runs the rebalance scan on the configured cron schedule, skipping days
// the exchange is closed
func scheduleScan(scanner *portfolio.Scanner, schedule *tradecron.TradeCron) (*gocron.Scheduler, error) {
	tz := common.GetTimezone()
	scheduler := gocron.NewScheduler(tz)

	_, err := scheduler.Cron(schedule.TimeSpec).Do(func() {
		now := time.Now().In(tz)
		if !schedule.IsTradeDay(now) {
			log.Info().Time("Now", now).Msg("exchange closed; skipping rebalance scan")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		report, err := scanner.ScanAll(ctx)
		if err != nil {
			log.Error().Stack().Err(err).Msg("scheduled rebalance scan failed")
			return
		}
		log.Info().Object("Report", report).Msg("scheduled rebalance scan finished")
	})
	if err != nil {
		return nil, err
	}

	if next, err := schedule.Next(time.Now().In(tz)); err == nil {
		log.Info().Str("Schedule", schedule.ScheduleString).Time("NextRun", next).Msg("scheduled rebalance scan")
	}

	scheduler.StartAsync()
	return scheduler, nil
}
