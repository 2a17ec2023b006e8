package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/status"
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
	"fixed": func(v int) string {
		return fmt.Sprintf("%.1f", float64(v)/logic.FixedScale)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>CO2 Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>CO2 Monitor</h1>

<h2>Readings</h2>
<table>
{{with .Reading}}<tr><th>CO2</th><td id="co2">{{.Co2}} ppm</td></tr>
<tr><th>Temperature</th><td id="temperature">{{fixed .Temperature}} &deg;C</td></tr>
<tr><th>Humidity</th><td id="humidity">{{fixed .RelHumidity}} %</td></tr>
<tr><th>Fan</th><td id="fan" class="{{if .FanState.On}}on{{else}}off{{end}}">{{.FanState}}</td></tr>
<tr><th>Updated</th><td>{{.Time.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>CO2</th><td class="unknown">no reading yet</td></tr>
{{end}}</table>

<h2>Fan Settings</h2>
<table>
<tr><th>Override</th><td>{{.Fan.Override}}</td></tr>
<tr><th>Humidity threshold</th><td>{{.Fan.RelHumThreshold}} %</td></tr>
<tr><th>CO2 threshold</th><td>{{.Fan.Co2Threshold}} ppm</td></tr>
<tr><th>Manual on for</th><td>{{.Fan.OnOverrideMins}} min</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Network</th><td>{{if .Net}}{{.Net}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Host network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Workers</h2>
<table>
{{range $name := .WorkerNames}}<tr><th>{{$name}}</th><td>{{index $.Workers $name}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Last restart</th><td>{{if .LastRestart}}{{.LastRestart}}{{else}}none{{end}}</td></tr>
<tr><th>Sensor</th><td>{{.Config.SensorType}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
