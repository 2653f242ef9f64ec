package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は文字列からログレベルを解析する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrus(l logrus.Level) Level {
	switch l {
	case logrus.TraceLevel, logrus.DebugLevel:
		return LevelDebug
	case logrus.InfoLevel:
		return LevelInfo
	case logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

const componentKey = "component"

// lineFormatter は "[時刻] [レベル] [コンポーネント] メッセージ" 形式で出力する
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	timestamp := e.Time.Format("2006-01-02 15:04:05.000")
	level := fromLogrus(e.Level)

	if c, ok := e.Data[componentKey].(string); ok && c != "" {
		fmt.Fprintf(&b, "[%s] [%s] [%s] %s\n", timestamp, level, c, e.Message)
	} else {
		fmt.Fprintf(&b, "[%s] [%s] %s\n", timestamp, level, e.Message)
	}
	return b.Bytes(), nil
}

// Logger はスレッドセーフなロガー（logrus バックエンド）
type Logger struct {
	l *logrus.Logger
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(lineFormatter{})
	l.SetLevel(minLevel.logrus())
	return &Logger{l: l}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.l.SetLevel(level.logrus())
}

// SetOutput は出力先を設定する
func (l *Logger) SetOutput(out io.Writer) {
	l.l.SetOutput(out)
}

// SetFormat は出力形式を設定する ("text" または "json")
func (l *Logger) SetFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		l.l.SetFormatter(lineFormatter{})
	case "json":
		l.l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	return nil
}

// Enabled は指定レベルが出力対象かどうかを返す
func (l *Logger) Enabled(level Level) bool {
	return l.l.IsLevelEnabled(level.logrus())
}

// log は指定されたレベルでログを出力する
func (l *Logger) log(level Level, component string, format string, args ...any) {
	lv := level.logrus()
	if !l.l.IsLevelEnabled(lv) {
		return
	}

	entry := logrus.NewEntry(l.l)
	if component != "" {
		entry = entry.WithField(componentKey, component)
	}
	entry.Logf(lv, format, args...)
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(component string, format string, args ...any) {
	l.log(LevelDebug, component, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(component string, format string, args ...any) {
	l.log(LevelInfo, component, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(component string, format string, args ...any) {
	l.log(LevelWarn, component, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(component string, format string, args ...any) {
	l.log(LevelError, component, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// Debug はデバッグログを出力する
func Debug(component string, format string, args ...any) {
	Default.Debug(component, format, args...)
}

// Info は情報ログを出力する
func Info(component string, format string, args ...any) {
	Default.Info(component, format, args...)
}

// Warn は警告ログを出力する
func Warn(component string, format string, args ...any) {
	Default.Warn(component, format, args...)
}

// Error はエラーログを出力する
func Error(component string, format string, args ...any) {
	Default.Error(component, format, args...)
}
