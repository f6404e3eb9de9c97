// Package log wires logrus up from a config.LogConfig, shipping
// records to Loki when configured, matching the pattern used in
// proxy/main.go of the teacher codebase.
package log

import (
	"github.com/fathomrun/nowcast/core/config"
	log "github.com/sirupsen/logrus"
	"github.com/yukitsune/lokirus"
)

// Initialize sets the standard logrus logger's level, formatter and
// Loki hook from cfg. Called once at daemon startup and again on
// every SIGHUP re-setup.
func Initialize(cfg config.LogConfig) {
	if cfg.Level != "" {
		if level, err := log.ParseLevel(cfg.Level); err == nil {
			log.SetLevel(level)
		} else {
			log.WithFields(log.Fields{"level": cfg.Level}).Warn("invalid log level, leaving level unchanged")
		}
	}

	switch cfg.Formatter {
	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Loki.Address != "" {
		opts := lokirus.NewLokiHookOptions().
			WithLevelMap(lokirus.LevelMap{
				log.InfoLevel:  "info",
				log.WarnLevel:  "warning",
				log.ErrorLevel: "error",
				log.FatalLevel: "fatal",
			}).
			WithFormatter(&log.JSONFormatter{}).
			WithStaticLabels(lokirus.Labels(cfg.Loki.Labels))

		hook := lokirus.NewLokiHookWithOpts(cfg.Loki.Address, opts,
			log.InfoLevel, log.WarnLevel, log.ErrorLevel, log.FatalLevel)

		log.AddHook(hook)
	}
}
