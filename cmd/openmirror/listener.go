package main

import (
	"strings"

	"github.com/PentesterFlow/OpenMirror/internal/logger"
	"github.com/PentesterFlow/OpenMirror/pkg/crawler"
)

// newCLIListener routes engine notifications to the logger. The level of a
// log line follows its prefix.
func newCLIListener(log *logger.Logger) crawler.Listener {
	return crawler.ListenerFuncs{
		Log: func(line string) {
			switch {
			case strings.HasPrefix(line, "[ERROR]"):
				log.Error(line)
			case strings.HasPrefix(line, "[FAIL]"), strings.HasPrefix(line, "[WARN]"):
				log.Warn(line)
			default:
				log.Info(line)
			}
		},
		Status: func(status string) {
			log.Debugf("status: %s", status)
		},
		Finished: func(s crawler.Summary) {
			log.Event(logger.InfoLevel).
				Str("start_url", s.StartURL).
				Int64("attempted", s.Attempted).
				Int64("ok", s.OK).
				Int64("failed", s.Failed).
				Bool("stopped", s.Stopped).
				Dur("duration", s.Duration()).
				Msg("Mirror finished")
		},
	}
}
