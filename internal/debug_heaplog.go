//go:build debugheaplog

package internal

import (
	"log/slog"
	"runtime"
	"time"
)

var (
	memstats   runtime.MemStats
	lastAllocs uint64
	epoch      = time.Now()
)

// LogEnabled always reports true so every log call site is exercised.
func LogEnabled(*slog.Logger, slog.Level) bool { return true }

// LogAttrs prints the record with the runtime's print builtins, which never
// allocate, and reports heap growth since the previous record.
func LogAttrs(_ *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if grew := heapGrowth(); grew > 0 {
		println("[ALLOC] +", grew, "bytes before", msg)
	}
	print("t=", time.Since(epoch).Microseconds(), "us ")
	switch {
	case level == LevelTrace:
		print("TRACE")
	case level < slog.LevelDebug:
		print("TRACE", int(level-LevelTrace))
	default:
		print(level.String())
	}
	print(" ", msg)
	for _, a := range attrs {
		print(" ", a.Key, "=")
		v := a.Value
		switch v.Kind() {
		case slog.KindString:
			print(v.String())
		case slog.KindInt64:
			print(v.Int64())
		case slog.KindUint64:
			print(v.Uint64())
		case slog.KindBool:
			print(v.Bool())
		case slog.KindDuration:
			print(v.Duration().Nanoseconds(), "ns")
		default:
			print("?")
		}
	}
	println()
	// Printing itself must not count against the next record.
	heapGrowth()
}

func heapGrowth() int64 {
	runtime.ReadMemStats(&memstats)
	grew := int64(memstats.TotalAlloc - lastAllocs)
	lastAllocs = memstats.TotalAlloc
	return grew
}
