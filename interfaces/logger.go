package interfaces

// Logger is the small capability the engine depends on for structured,
// leveled diagnostics. The engine logs block reclamation events from the
// buffer pool; mapping-table cascades and frame eviction are not logged.
// Production callers satisfy it with a logrus adapter; tests use NopLogger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NopLogger discards everything. Zero value is ready to use.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{}) {}
func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Warnf(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}
