package nanto

import (
	"runtime"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	StateDir   string
	CacheDir   string
	LogDir     string
	LockDir    string
	ConfigFile = "/etc/nanto.conf"
	BuildJobs  int
	Debug      bool
	Verbose    bool
	// TargetOverride replaces the manifest target when NANTO_TARGET is set.
	TargetOverride string
	version        = "dev" //default version; overridden at build time
	hostArch       = runtime.GOARCH
	buildDate      = "unknown" // overridden at build time
	// Global executor (declared, to be assigned in Main)
	UserExec *Executor
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
