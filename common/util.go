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

package common

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"
)

const (
	DefaultTimezone = "Asia/Seoul"
)

// SetupLogging configures the global zerolog logger from the log.* viper keys
func SetupLogging() {
	level := strings.ToLower(viper.GetString("log.level"))

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	if viper.GetBool("log.report_caller") {
		log.Logger = log.With().Caller().Logger()
	}

	output := viper.GetString("log.output")
	switch output {
	case "", "stdout":
		log.Logger = log.Output(writerFor(os.Stdout))
	case "stderr":
		log.Logger = log.Output(writerFor(os.Stderr))
	default:
		// the file handle lives as long as the process
		fh, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			log.Panic().Err(err).Str("Output", output).Msg("could not open log file")
		}
		log.Logger = log.Output(writerFor(fh))
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	log.Info().Str("Level", zerolog.GlobalLevel().String()).Msg("initialized logging")
}

func writerFor(fh *os.File) zerolog.LevelWriter {
	if viper.GetBool("log.pretty") {
		return zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: fh, TimeFormat: time.RFC3339})
	}
	return zerolog.MultiLevelWriter(fh)
}

// GetTimezone returns the reference timezone used to anchor dates. Markets close and
// history records are stamped in this zone.
func GetTimezone() *time.Location {
	name := viper.GetString("timezone")
	if name == "" {
		name = DefaultTimezone
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		log.Panic().Err(err).Str("Timezone", name).Msg("could not load timezone")
	}
	return tz
}

// Midnight truncates t to the start of its day in t's location
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
