package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
)

// TextFormatter is a custom logrus formatter.
type TextFormatter struct {
	Config FormatConfig
	// Color enables ANSI styling of the level and component.
	Color bool
}

var (
	styleRenderer  = newStyleRenderer()
	componentStyle = styleRenderer.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	levelStyles    = map[logrus.Level]lipgloss.Style{
		logrus.DebugLevel: styleRenderer.NewStyle().Foreground(lipgloss.Color("8")),
		logrus.InfoLevel:  styleRenderer.NewStyle().Foreground(lipgloss.Color("10")),
		logrus.WarnLevel:  styleRenderer.NewStyle().Foreground(lipgloss.Color("11")),
		logrus.ErrorLevel: styleRenderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
)

// newStyleRenderer returns a renderer that always emits ANSI codes; whether
// they are used at all is decided per formatter by TextFormatter.Color.
func newStyleRenderer() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI)
	return r
}

// Format renders a single log entry.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}

	levelStr := entry.Level.String()
	if levelStr == "warning" {
		levelStr = "warn"
	}
	level := fmt.Sprintf("[%s]", strings.ToUpper(levelStr))
	if style, ok := levelStyles[entry.Level]; ok && f.Color {
		level = style.Render(level)
	}
	b.WriteString(level)

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		componentStr := fmt.Sprintf("%v", component)
		if f.Color {
			componentStr = componentStyle.Render(componentStr)
		}
		b.WriteString(fmt.Sprintf(" [%s]", componentStr))
	}

	if entry.HasCaller() {
		fileName := filepath.Base(entry.Caller.File)
		funcName := filepath.Base(entry.Caller.Function)
		b.WriteString(fmt.Sprintf(" [%s:%d %s]", fileName, entry.Caller.Line, funcName))
	}

	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", key, entry.Data[key]))
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}
