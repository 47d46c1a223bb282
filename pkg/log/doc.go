// Package log provides the logging abstraction used across tillsync.
//
// Components depend on the Logger interface only. A zerolog-backed
// implementation is the default for the daemon; the no-op logger is the
// default for embedders that do not supply one.
//
//	logger := log.NewZerologAdapter(log.Options{Level: "debug"})
//	logger.Info("queue drained", log.Int("synced", 3))
//
// Levels are global: SetLevel changes the threshold for every zerolog
// adapter at once, which is what config hot reload relies on.
package log
