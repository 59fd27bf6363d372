package util

import (
	"fmt"
	"io"
	"os"

	"com.aviebrantz.statistics/pkg/config"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// SetupLogging installs the handler and level of cfg on the default logger.
func SetupLogging(cfg config.LoggingConfig) error {
	return setupLogging(cfg, os.Stderr)
}

func setupLogging(cfg config.LoggingConfig, w io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var handler log.Handler
	switch cfg.Format {
	case "json":
		handler = jsonhandler.New(w)
	case "text":
		handler = text.New(w)
	case "cli", "":
		handler = cli.New(w)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	log.SetHandler(handler)
	log.SetLevel(level)
	return nil
}
