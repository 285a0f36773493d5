package config

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the level and format from cfg to the
// standard logrus logger.  Unknown levels fall back to info.
func ConfigureLogging(cfg Config) {
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL; using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
