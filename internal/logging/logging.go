/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, nil)
}

// SetupWithWriter configures zerolog and tees JSON records to additionalWriter.
// Development logs to the console at debug level; everything else logs JSON
// to stdout at info level.
func SetupWithWriter(environment string, additionalWriter io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel

	var out io.Writer = os.Stdout
	if environment == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if additionalWriter != nil {
		out = zerolog.MultiLevelWriter(out, additionalWriter)
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// ParseLevel overrides the level of logger when name is a valid level.
func ParseLevel(logger zerolog.Logger, name string) (zerolog.Logger, error) {
	if name == "" {
		return logger, nil
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return logger, err
	}
	return logger.Level(lvl), nil
}
