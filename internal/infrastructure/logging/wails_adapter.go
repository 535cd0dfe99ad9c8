package logging

// WailsLoggerAdapter lets the dashboard window's runtime log through Logger
type WailsLoggerAdapter struct {
	logger Logger
}

// NewWailsLoggerAdapter routes Wails runtime logs to logger
func NewWailsLoggerAdapter(logger Logger) *WailsLoggerAdapter {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &WailsLoggerAdapter{logger: logger}
}

func (w *WailsLoggerAdapter) Print(message string) {
	w.logger.Info(message, "source", "dashboard")
}

func (w *WailsLoggerAdapter) Trace(message string) {
	w.logger.Debug(message, "source", "dashboard", "level", "trace")
}

func (w *WailsLoggerAdapter) Debug(message string) {
	w.logger.Debug(message, "source", "dashboard")
}

func (w *WailsLoggerAdapter) Info(message string) {
	w.logger.Info(message, "source", "dashboard")
}

func (w *WailsLoggerAdapter) Warning(message string) {
	w.logger.Warn(message, "source", "dashboard")
}

func (w *WailsLoggerAdapter) Error(message string) {
	w.logger.Error(message, "source", "dashboard")
}

// Fatal is logged at error level; the adapter never exits the process
func (w *WailsLoggerAdapter) Fatal(message string) {
	w.logger.Error(message, "source", "dashboard", "level", "fatal")
}
