package dbg

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"dbg.debug",
	false,
	"Write debugger-core debugging messages to stderr.")

var gLogger *log.Logger
var gLoggerOnce sync.Once

func initLogger() {
	var writer io.Writer = io.Discard
	if flag.Parsed() && *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gLogger = log.New(writer, "dbg: ", flags)
}

func getLogger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// debugLogf writes a debugging message, a no-op unless -dbg.debug is set.
func debugLogf(format string, v ...interface{}) {
	getLogger().Output(2, fmt.Sprintf(format, v...))
}
