package httpserver

import (
	"html/template"
	"net/http"

	"github.com/blackmichael/confession-board/internal/display"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Confession Board</title>
<style>
  body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; color: #222; }
  .alert { background: #fde2e1; border: 1px solid #e0a3a0; padding: .75rem; }
  .error { color: #a33; }
  .sender { font-family: monospace; color: #555; }
  .when { color: #888; font-size: .85rem; }
  table { width: 100%; border-collapse: collapse; margin-top: 1.5rem; }
  td, th { text-align: left; padding: .5rem; border-bottom: 1px solid #eee; vertical-align: top; }
  textarea { width: 100%; min-height: 5rem; }
</style>
</head>
<body>
<h1>Confession Board</h1>

{{if .Alert}}<p class="alert" role="alert">{{.Alert}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}

{{if .Connected}}
<p>Connected as <span class="sender" title="{{.Account}}">{{.ShortAccount}}</span></p>
<form method="post" action="/confess">
  <textarea id="sin-text" name="message" placeholder="Confess your sins..."{{if .Pending}} disabled{{end}}>{{.Draft}}</textarea>
  <button type="submit"{{if .Pending}} disabled{{end}}>{{if .Pending}}Confessing...{{else}}Confess{{end}}</button>
  {{if .PendingTx}}<span class="when">tx {{.PendingTx}}</span>{{end}}
</form>
{{else}}
<form method="post" action="/connect">
  <button type="submit">Connect Wallet</button>
</form>
{{end}}

<table>
  <thead><tr><th>From</th><th>Confession</th><th>When</th></tr></thead>
  <tbody>
  {{range .Confessions}}
    <tr>
      <td class="sender" title="{{.Sender}}">{{.ShortSender}}</td>
      <td>{{.Message}}</td>
      <td class="when" title="{{.Relative}}">{{.Calendar}}</td>
    </tr>
  {{else}}
    <tr><td colspan="3">No confessions yet.</td></tr>
  {{end}}
  </tbody>
</table>

<script>
  (function () {
    var first = true;
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onmessage = function () {
      if (first) { first = false; return; }
      var el = document.getElementById("sin-text");
      if (el && el === document.activeElement && el.value) { return; }
      location.reload();
    };
  })();
</script>
</body>
</html>
`))

type pageData struct {
	boardResponse
	ShortAccount string
	Draft        string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	snap := s.board.Snapshot()
	data := pageData{
		boardResponse: s.toBoardResponse(snap),
		Draft:         snap.Draft,
	}
	if data.Connected {
		data.ShortAccount = display.ShortAddress(data.Account)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}
