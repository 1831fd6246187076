package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/climate-sensor/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Climate Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.value { font-size: 1.6em; font-weight: bold; }
.err { color: red; font-weight: bold; }
.pending { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Climate Sensor</h1>

<h2>Reading</h2>
<table>
<tr><th>Temperature</th><td id="temperature" class="{{if .Reading.Valid}}value{{else}}err{{end}}">{{.Temperature}}</td></tr>
<tr><th>Humidity</th><td id="humidity" class="{{if .Reading.Valid}}value{{else}}err{{end}}">{{.Humidity}}</td></tr>
<tr><th>Taken</th><td>{{if .Sampled}}{{.ReadingAt.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}<span class="pending">not yet</span>{{end}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td class="err">{{.LastCause}}: {{.LastError}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Sample Counts</h2>
<table>
<tr><th>OK</th><td>{{.Counts.OK}}</td></tr>
<tr><th>Timeout</th><td>{{.Counts.Timeout}}</td></tr>
<tr><th>Incomplete</th><td>{{.Counts.Incomplete}}</td></tr>
<tr><th>Checksum</th><td>{{.Counts.Checksum}}</td></tr>
<tr><th>Restore</th><td>{{.Counts.Restore}}</td></tr>
<tr><th>Line</th><td>{{.Counts.Line}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}} {{.Config.Pin}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Interval</th><td>every {{.Config.Interval}} ticks</td></tr>
<tr><th>Threshold</th><td>{{.Config.Threshold}} ticks</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	temp, hum := snap.Reading.Display()
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		Sampled     bool
		Temperature string
		Humidity    string
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		Sampled:     snap.Sampled(),
		Temperature: temp,
		Humidity:    hum,
	}
	indexTmpl.Execute(w, data)
}
