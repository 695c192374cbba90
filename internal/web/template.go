package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/occupancy-node/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"celsius": func(v float32) string {
		return fmt.Sprintf("%.2f °C", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Occupancy Node {{.Config.Node}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ACTIVE { color: blue; font-weight: bold; }
.INACTIVE_TIMING { color: green; }
.INACTIVE_IDLE { color: red; }
.UNKNOWN { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.bad { color: red; }
</style>
</head>
<body>
<h1>Occupancy Node {{.Config.Node}}</h1>

<h2>Sampling</h2>
<table>
<tr><th>Enabled</th><td>{{if .Enabled}}yes{{else}}no{{end}}</td></tr>
<tr><th>State</th><td class="{{stateOrUnknown .StateName}}">{{stateOrUnknown .StateName}}</td></tr>
<tr><th>PIR</th><td>{{if .Decision.PIR}}motion{{else}}quiet{{end}}</td></tr>
<tr><th>Hold timer</th><td>{{.Decision.PIRTimer}} ticks</td></tr>
<tr><th>Inactive</th><td>{{.Decision.PIRInactive}} ticks</td></tr>
<tr><th>Background timer</th><td>{{.Decision.Background}} ticks</td></tr>
<tr><th>Last tick</th><td>{{if .LastTick.IsZero}}never{{else}}{{.LastTick.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td></tr>
</table>

<h2>Readings</h2>
<table>
{{with .Thermal}}<tr><th>Thermal min / max</th><td>{{celsius .Stats.Min}} / {{celsius .Stats.Max}}</td></tr>
<tr><th>Thermal mean ± sd</th><td>{{celsius .Stats.Mean}} ± {{printf "%.2f" .Stats.StdDev}}</td></tr>
<tr><th>Thermistor</th><td>{{celsius .Thermistor}}</td></tr>{{else}}<tr><th>Thermal</th><td>no frame yet</td></tr>{{end}}
{{with .RHT}}{{if .Reading.IsSentinel}}<tr><th>Humidity / temp</th><td class="bad">read failed</td></tr>{{else}}<tr><th>Humidity</th><td>{{printf "%.1f" .Reading.Humidity}} %</td></tr>
<tr><th>Temperature</th><td>{{printf "%.1f" .Reading.Temperature}} °C</td></tr>{{end}}{{else}}<tr><th>Humidity / temp</th><td>no reading yet</td></tr>{{end}}
</table>

<h2>Frames</h2>
<table>
<tr><th>Live</th><td>{{.Frames.Live}}</td></tr>
<tr><th>Idle background</th><td>{{.Frames.IdleBackground}}</td></tr>
<tr><th>Active background</th><td>{{.Frames.ActiveBackground}}</td></tr>
<tr><th>Send errors</th><td>{{.Frames.SendErrors}}</td></tr>
<tr><th>Bus errors</th><td>{{.Frames.BusErrors}}</td></tr>
<tr><th>Humidity errors</th><td>{{.Frames.SensorErrors}}</td></tr>
<tr><th>PIR errors</th><td>{{.Frames.PIRErrors}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Transport</th><td>{{.Config.Transport}}{{if .Config.SerialPort}} ({{.Config.SerialPort}}){{end}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Hold</th><td>{{.Config.HoldTicks}} ticks</td></tr>
<tr><th>Idle recalibration</th><td>{{.Config.IdleRecalibrationTicks}} ticks ({{.IdleInterval}})</td></tr>
<tr><th>Periodic recalibration</th><td>{{.Config.PeriodicRecalibrationTicks}} ticks ({{.PeriodicInterval}})</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and State() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime           time.Duration
		StateName        string
		IdleInterval     time.Duration
		PeriodicInterval time.Duration
	}{
		Snapshot:         snap,
		Uptime:           snap.Uptime(),
		StateName:        string(snap.State()),
		IdleInterval:     snap.Config.IdleRecalibrationInterval(),
		PeriodicInterval: snap.Config.PeriodicRecalibrationInterval(),
	}
	indexTmpl.Execute(w, data)
}
