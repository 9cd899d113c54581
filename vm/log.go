package vm

import (
	"github.com/tliron/commonlog"
)

// log is the package logger. A Machine may be given its own with WithLogger.
var log = commonlog.GetLogger("storyvm.vm")
