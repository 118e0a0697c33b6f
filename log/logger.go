// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package log builds the zap loggers used across netns-inspect.
package log

import (
	"strings"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log encodings.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
	EncodingLogfmt  = "logfmt"
)

const stderr = "stderr"

func init() {
	_ = zap.RegisterEncoder(EncodingLogfmt, func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return zaplogfmt.NewEncoder(cfg), nil
	})
}

type Config struct {
	Level            string
	Encoding         string
	OutputPaths      string // comma separated list of paths
	ErrorOutputPaths string // comma separated list of paths
}

// New creates and returns a zap logger and a clean up function. Output goes
// to stderr unless paths are given, so stdout carries only the report.
func New(cfg *Config) (*zap.Logger, func(), error) {
	loggerCfg := &zap.Config{}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse log level")
	}
	loggerCfg.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Encoding {
	case "":
		loggerCfg.Encoding = EncodingConsole
	case EncodingConsole, EncodingJSON, EncodingLogfmt:
		loggerCfg.Encoding = cfg.Encoding
	default:
		return nil, nil, errors.Errorf("unknown log encoding %q", cfg.Encoding)
	}

	loggerCfg.OutputPaths = getOutputPaths(cfg.OutputPaths)
	loggerCfg.ErrorOutputPaths = getOutputPaths(cfg.ErrorOutputPaths)
	loggerCfg.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:       "time",
		MessageKey:    "msg",
		LevelKey:      "level",
		NameKey:       "logger",
		StacktraceKey: "stacktrace",
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to build zap logger")
	}

	cleanup := func() {
		_ = logger.Sync()
	}
	return logger, cleanup, nil
}

func getOutputPaths(paths string) []string {
	if paths == "" {
		return []string{stderr}
	}
	return strings.Split(paths, ",")
}
