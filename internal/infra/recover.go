package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it in a new goroutine after a panic.
// maxPanics limits the restarts; a negative value restarts forever and zero
// exits the process on the next panic.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			entry := log.WithField("object", "GoRecoverable").WithField("job", id)
			entry.Errorf("panic: %v, %s", err, identifyPanic())
			switch {
			case maxPanics == 0:
				entry.Fatal("panics limit exceeded, exiting")
			case maxPanics > 0:
				maxPanics--
				entry.Debugf("recovering with max panics left: %d", maxPanics)
				go GoRecoverable(maxPanics, id, f)
			default:
				entry.Debug("recovering")
				go GoRecoverable(maxPanics, id, f)
			}
		}
	}()
	f()
}

// Recover is deferred by one-shot jobs: a panic is logged and swallowed.
func Recover(id string) {
	if err := recover(); err != nil {
		log.WithField("object", "Recover").WithField("job", id).
			Errorf("panic: %v, %s", err, identifyPanic())
	}
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}

	return fmt.Sprintf("pc:%x", pc)
}
