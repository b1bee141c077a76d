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
	"fmt"
	"os"

	"github.com/mutualrisk/mr-api/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.SetDefault("database.role", "mrapi")

	// Document store
	viper.BindEnv("surrealdb.address", "SURREALDB_ADDRESS")
	viper.BindEnv("surrealdb.username", "SURREALDB_USERNAME")
	viper.BindEnv("surrealdb.password", "SURREALDB_PASSWORD")
	viper.SetDefault("surrealdb.namespace", "mutualrisk")
	viper.SetDefault("surrealdb.database", "portfolio")

	// Solver
	viper.BindEnv("solver.url", "SOLVER_URL")
	rootCmd.PersistentFlags().String("solver-url", "", "Base URL of the portfolio optimization service")
	viper.BindPFlag("solver.url", rootCmd.PersistentFlags().Lookup("solver-url"))
	viper.SetDefault("solver.path", "/optimize")
	viper.SetDefault("solver.timeout", "30s")
	viper.SetDefault("solver.rate_limit", 5.0)

	// Notifications
	viper.BindEnv("notify.driver", "MR_NOTIFY_DRIVER")
	viper.SetDefault("notify.driver", "sendgrid")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("notify.rate_limit", 10.0)
	viper.BindEnv("sendgrid.apikey", "SENDGRID_APIKEY")
	viper.BindEnv("email.name", "MR_EMAIL_NAME")
	viper.BindEnv("email.address", "MR_EMAIL_ADDRESS")
	viper.BindEnv("nats.server", "NATS_SERVER")
	viper.BindEnv("nats.credentials", "NATS_CREDENTIALS")
	viper.SetDefault("nats.alerts_subject", "mutualrisk.alerts")

	// Rebalance scan
	viper.SetDefault("rebalance.deviation_threshold", 10.0)
	viper.SetDefault("rebalance.schedule", "0 18 * * 1-5")
	viper.SetDefault("rebalance.workers", 4)

	// History
	viper.SetDefault("lookback.days_per_unit", 10)
	viper.SetDefault("history.ticks", 30)
	viper.SetDefault("history.solver_years", 2)

	// Cache
	viper.SetDefault("cache.local_size", 1024)
	viper.SetDefault("cache.redis", false)
	viper.BindEnv("cache.redis_url", "REDIS_URL")
	viper.SetDefault("cache.ttl", 3600)

	// Logging configuration
	viper.BindEnv("log.level", "MR_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "MR_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "MR_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	rootCmd.PersistentFlags().Bool("log-pretty", false, "Write human readable logs")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	// Tracing
	viper.BindEnv("otlp.endpoint", "OTLP_ENDPOINT")
	viper.SetDefault("otlp.http", false)

	viper.SetDefault("timezone", common.DefaultTimezone)
}

var rootCmd = &cobra.Command{
	Use:     common.ProgramName,
	Version: common.CurrentVersion.String(),
	Short:   "MutualRisk portfolio API",
	Long:    `Build mean-variance portfolios, track their history and notify users when an allocation needs rebalancing.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
