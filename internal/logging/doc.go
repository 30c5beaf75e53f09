// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every component accepts a *Logger through its options and derives a
// named child with Component. A nil logger is replaced by a no-op one.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "debug", Development: true})
//	store := logger.Component("store")
//	store.Info("store upgraded", zap.Int("version", 3))
package logging
