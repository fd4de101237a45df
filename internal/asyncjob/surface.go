package asyncjob

import "go.uber.org/zap"

// Surface presents a running job. A Controller never calls it concurrently:
// in async mode only the supervising loop touches it, in sync mode calls from
// the job and from cancel or close requests are serialized by a lock.
// Surface methods must not call RequestCancel or RequestClose synchronously.
type Surface interface {
	Present()
	SetCursorBusy()
	Destroy()
	SetTitle(title string)
	SetLabelText(text string)
	ShowWarning(text string)
	HideWarning()
	Pulse()
	SetFraction(frac float64)
	SetProgressText(text string)
	SetStageText(text string)
	SetCancelVisible(visible bool)
	// ConfirmBeforeClosing blocks until the user answers whether a running
	// job may be canceled so its view can close.
	ConfirmBeforeClosing() bool
}

// NopSurface ignores every call and declines close confirmation.
type NopSurface struct{}

func (NopSurface) Present()                   {}
func (NopSurface) SetCursorBusy()             {}
func (NopSurface) Destroy()                   {}
func (NopSurface) SetTitle(string)            {}
func (NopSurface) SetLabelText(string)        {}
func (NopSurface) ShowWarning(string)         {}
func (NopSurface) HideWarning()               {}
func (NopSurface) Pulse()                     {}
func (NopSurface) SetFraction(float64)        {}
func (NopSurface) SetProgressText(string)     {}
func (NopSurface) SetStageText(string)        {}
func (NopSurface) SetCancelVisible(bool)      {}
func (NopSurface) ConfirmBeforeClosing() bool { return false }

// LogSurface writes surface changes to a zap logger. Pulses and fraction
// updates log at debug level; everything else at info. It always confirms
// close requests, which suits non-interactive runs.
type LogSurface struct {
	logger *zap.Logger
	title  string
}

// NewLogSurface returns a LogSurface writing to logger.
func NewLogSurface(logger *zap.Logger) *LogSurface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSurface{logger: logger}
}

func (s *LogSurface) Present() { s.logger.Info("job started", zap.String("title", s.title)) }

func (s *LogSurface) SetCursorBusy() {}

func (s *LogSurface) Destroy() { s.logger.Debug("job view closed", zap.String("title", s.title)) }

func (s *LogSurface) SetTitle(title string) { s.title = title }

func (s *LogSurface) SetLabelText(text string) {
	if text != "" {
		s.logger.Info(text, zap.String("title", s.title))
	}
}

func (s *LogSurface) ShowWarning(text string) { s.logger.Warn(text, zap.String("title", s.title)) }

func (s *LogSurface) HideWarning() {}

func (s *LogSurface) Pulse() {}

func (s *LogSurface) SetFraction(frac float64) {
	s.logger.Debug("job progress", zap.String("title", s.title), zap.Float64("fraction", frac))
}

func (s *LogSurface) SetProgressText(text string) {
	s.logger.Debug("job progress", zap.String("title", s.title), zap.String("progress", text))
}

func (s *LogSurface) SetStageText(text string) {
	s.logger.Info("job stage", zap.String("title", s.title), zap.String("stage", text))
}

func (s *LogSurface) SetCancelVisible(bool) {}

func (s *LogSurface) ConfirmBeforeClosing() bool { return true }
