// Package logger builds the zerolog logger shared by the CLI, the local
// server and the API client.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer     io.Writer
	path       string
	level      zerolog.Level
	pretty     bool
	LogChannel chan string
}

type LogData struct {
	writer     io.Writer
	LogFile    *os.File
	Logger     zerolog.Logger
	LogChannel chan string
}

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// FromChannel also sends every log line to chn. Lines are dropped while
// the channel is full.
func (build *LogBuild) FromChannel(chn chan string) *LogBuild {
	build.LogChannel = chn
	return build
}

func (build *LogBuild) WithLevel(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

// Pretty switches to human-readable console output. It has no effect on
// file output.
func (build *LogBuild) Pretty() *LogBuild {
	build.pretty = true
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stderr
	if build.writer != nil {
		logData.writer = build.writer
	}
	logData.LogChannel = build.LogChannel
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	} else if build.pretty {
		logData.writer = zerolog.ConsoleWriter{Out: logData.writer, TimeFormat: "15:04:05"}
	}
	if build.LogChannel != nil {
		logData.writer = zerolog.MultiLevelWriter(logData.writer, channelWriter(build.LogChannel))
	}
	logData.Logger = zerolog.New(logData.writer).Level(build.level).With().Timestamp().Logger()
	return
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

type channelWriter chan string

func (c channelWriter) Write(p []byte) (int, error) {
	select {
	case c <- strings.TrimRight(string(p), "\n"):
	default:
	}
	return len(p), nil
}

// ParseLevel accepts zerolog level names; an empty name is info.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(name))
}
