package webbridge

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// WebSocketURL is what the extension's options page is configured with.
func (b *Bridge) WebSocketURL(host string) string {
	return ConnectURL(host, b.cfg.Token)
}

// ConnectURL builds the pairing URL for a bridge listening on host.
func ConnectURL(host, token string) string {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

// handleConnect shows the pairing URL as text and QR code.
func (b *Bridge) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	wsURL := b.WebSocketURL(r.Host)
	png, err := qrcode.Encode(wsURL, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "failed to generate qr code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = connectPage.Execute(w, map[string]any{
		"QR":      template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
		"URL":     wsURL,
		"Clients": b.ClientCount(),
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("render: %v", err), http.StatusInternalServerError)
	}
}

var connectPage = template.Must(template.New("connect").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Floating Chart Connect</title>
    <style>
      body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 32px; }
      .container { max-width: 640px; margin: 0 auto; }
      .qr { width: 256px; height: 256px; border: 1px solid #ddd; padding: 8px; }
      code { display: block; margin-top: 12px; padding: 12px; background: #f6f6f6; border-radius: 8px; }
    </style>
  </head>
  <body>
    <div class="container">
      <h1>Floating Chart Connect</h1>
      <p>Paste this URL into the extension options to sync tabs through the hub.</p>
      <p><strong>Local only.</strong> The bridge only accepts loopback connections.</p>
      <img class="qr" src="{{.QR}}" alt="QR code" />
      <code>{{.URL}}</code>
      <p>{{.Clients}} tab(s) connected.</p>
    </div>
  </body>
</html>
`))
