package templates

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"vpnshield/pkg/catalog"
	"vpnshield/pkg/session"
	"vpnshield/pkg/telemetry"
)

//go:embed templates/*.template.html
var templatesFS embed.FS

var templates *template.Template

type LoginParams struct {
	Error string
}

type DashboardParams struct {
	ServerName string
	Username   string
	Snapshot   session.Snapshot
	Summary    telemetry.Summary
	Servers    []catalog.Endpoint
}

func init() {
	var err error
	templates, err = template.New("").Funcs(template.FuncMap{
		"format_time": formatTime,
		"format_mbps": func(v float64) string {
			return fmt.Sprintf("%.1f Mbps", v)
		},
	}).ParseFS(templatesFS, "templates/*.template.html")
	if err != nil {
		panic(err)
	}
}

func formatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	tsStr := ts.Format(time.DateTime)
	d := time.Since(*ts).Round(time.Second)
	if d > 0 {
		tsStr += fmt.Sprintf(" (%s ago)", d)
	} else {
		tsStr += fmt.Sprintf(" (in %s)", -d)
	}
	return tsStr
}

func RenderTemplate(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := templates.ExecuteTemplate(w, name, data)
	if err != nil {
		slog.Error("failed to render template", slog.String("template", name), slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
