// Package logger provides a small, thread-safe logging facade over logrus.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional component name, and message.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Server started")
//	logger.Info("worker-1", "Executing job")
//	logger.Error("conn", "Write failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("pool", "Debug message")
//
// # Formats
//
// The default text format is "[timestamp] [LEVEL] [component] message".
// SetFormat("json") switches to logrus' JSON formatter, with the component
// stored in the "component" field.
//
// # Thread Safety
//
// All logging operations are safe for concurrent use.
package logger
