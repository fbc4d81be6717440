package logger

import (
	"go.uber.org/zap/zapcore"
)

// KeySendAlert flags a log entry for forwarding to the operator alert channel.
const KeySendAlert = "send_alert"

// AlertSender delivers a flagged log entry to an external channel. Delivery
// is best effort; the core never blocks on it.
type AlertSender interface {
	SendAlert(level, message string, fields map[string]interface{})
}

type AlertCore struct {
	core     zapcore.Core
	minLevel zapcore.Level
	sender   AlertSender
}

func NewAlertCore(core zapcore.Core, minLevel zapcore.Level, sender AlertSender) *AlertCore {
	return &AlertCore{core: core, minLevel: minLevel, sender: sender}
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		minLevel: a.minLevel,
		sender:   a.sender,
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, a)
	}
	return checkedEntry
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	shouldSend := false
	for _, f := range fields {
		if f.Key == KeySendAlert && f.Type == zapcore.BoolType && f.Integer == 1 {
			shouldSend = true
			break
		}
	}
	if a.sender != nil && entry.Level >= a.minLevel && shouldSend {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			if f.Key == KeySendAlert {
				continue
			}
			f.AddTo(enc)
		}
		go a.sender.SendAlert(entry.Level.CapitalString(), entry.Message, enc.Fields)
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}
