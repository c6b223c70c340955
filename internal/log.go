package internal

import "log/slog"

// LevelTrace is the level used for per-segment logging, below slog.LevelDebug.
const LevelTrace slog.Level = slog.LevelDebug - 2
