package chartload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/brendandebeasi/floatchart/pkg/state"
)

// ContainerID is the element the chart library renders into.
const ContainerID = "tradingview_widget"

// MessageSource tags postMessage payloads sent from the bootstrap page.
const MessageSource = "floatchart"

// ChartConfig is the object passed to the library's widget constructor.
type ChartConfig struct {
	Autosize          bool     `json:"autosize"`
	Symbol            string   `json:"symbol"`
	Interval          string   `json:"interval"`
	Timezone          string   `json:"timezone"`
	Theme             string   `json:"theme"`
	Style             string   `json:"style"`
	Locale            string   `json:"locale"`
	ToolbarBg         string   `json:"toolbar_bg"`
	EnablePublishing  bool     `json:"enable_publishing"`
	AllowSymbolChange bool     `json:"allow_symbol_change"`
	ContainerID       string   `json:"container_id"`
	HideSideToolbar   bool     `json:"hide_side_toolbar"`
	HideTopToolbar    bool     `json:"hide_top_toolbar"`
	HideLegend        bool     `json:"hide_legend"`
	SaveImage         bool     `json:"save_image"`
	WithDateRanges    bool     `json:"withdateranges"`
	Studies           []string `json:"studies"`
}

// NewChartConfig builds the constructor config for settings.
func NewChartConfig(s state.Settings, cfg Config) ChartConfig {
	return ChartConfig{
		Autosize:          true,
		Symbol:            s.Symbol,
		Interval:          s.Interval,
		Timezone:          cfg.Timezone,
		Theme:             string(s.Theme),
		Style:             s.Style,
		Locale:            cfg.Locale,
		ToolbarBg:         "#f1f3f6",
		AllowSymbolChange: true,
		ContainerID:       ContainerID,
		WithDateRanges:    true,
		Studies:           []string{},
	}
}

var bootstrapTmpl = template.Must(template.New("bootstrap").Parse(`<!DOCTYPE html>
<html style="height:100%;margin:0;padding:0">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1, maximum-scale=1, user-scalable=no">
<style>
html, body { height: 100%; margin: 0; padding: 0; overflow: hidden; background: {{.Background}}; }
.floatchart-container { position: absolute; inset: 0; }
#{{.ContainerID}} { width: 100%; height: 100%; }
#floatchart-loading { position: absolute; inset: 0; display: flex; align-items: center; justify-content: center; color: #787b86; font: 13px sans-serif; }
</style>
</head>
<body>
<div id="floatchart-loading">Loading chart…</div>
<div class="floatchart-container"><div id="{{.ContainerID}}"></div></div>
<script>
(function () {
  var attempt = {{.Attempt}};
  function report(status, detail) {
    parent.postMessage({ source: "{{.Source}}", attempt: attempt, status: status, detail: detail || "" }, "*");
  }
  var lib = document.createElement("script");
  lib.src = {{.LibraryURL}};
  lib.onerror = function () { report("error", "library failed to load"); };
  lib.onload = function () {
    var poll = setInterval(function () {
      if (!(window.TradingView && window.TradingView.widget)) { return; }
      clearInterval(poll);
      try {
        new window.TradingView.widget({{.Config}});
        var loading = document.getElementById("floatchart-loading");
        if (loading) { loading.remove(); }
        report("ready");
      } catch (e) {
        report("error", String(e));
      }
    }, {{.PollMillis}});
  };
  document.head.appendChild(lib);
})();
</script>
</body>
</html>
`))

// Bootstrap renders the page loaded into a fresh frame for one load attempt.
// The page loads the library, polls until its entry point exists, constructs
// the chart and reports "ready" or "error" to its parent.
func Bootstrap(s state.Settings, cfg Config, attempt uint64) (string, error) {
	chartJSON, err := json.Marshal(NewChartConfig(s, cfg))
	if err != nil {
		return "", fmt.Errorf("encode chart config: %w", err)
	}
	libJSON, err := json.Marshal(cfg.LibraryURL)
	if err != nil {
		return "", fmt.Errorf("encode library url: %w", err)
	}

	background := "#131722"
	if s.Theme == state.ThemeLight {
		background = "#ffffff"
	}

	var buf bytes.Buffer
	err = bootstrapTmpl.Execute(&buf, map[string]any{
		"Attempt":     attempt,
		"Background":  background,
		"ContainerID": ContainerID,
		"Source":      MessageSource,
		"LibraryURL":  string(libJSON),
		"Config":      string(chartJSON),
		"PollMillis":  cfg.PollInterval.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("render bootstrap: %w", err)
	}
	return buf.String(), nil
}

// DataURL wraps markup in a data: URL suitable for a sandboxed frame's src.
func DataURL(markup string) string {
	return "data:text/html;charset=utf-8," + strings.ReplaceAll(url.QueryEscape(markup), "+", "%20")
}
