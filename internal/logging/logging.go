// Package logging provides the shared leveled logger.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/logutils"
)

var levels = []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"}

// New returns a logger whose output is filtered to minLevel and above.
// Messages are expected to carry a "[LEVEL] " prefix.
func New(out io.Writer, minLevel string) *log.Logger {
	filter := &logutils.LevelFilter{
		Levels:   levels,
		MinLevel: logutils.LogLevel(normalizeLevel(minLevel)),
		Writer:   out,
	}

	return log.New(filter, "", log.Ldate|log.Ltime)
}

// Default returns a stderr logger at INFO level.
func Default() *log.Logger {
	return New(os.Stderr, "INFO")
}

func normalizeLevel(value string) string {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, level := range levels {
		if string(level) == upper {
			return upper
		}
	}

	return "INFO"
}
