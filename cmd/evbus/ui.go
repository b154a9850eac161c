/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	md "github.com/russross/blackfriday/v2"
)

//go:embed reference.md
var reference []byte

type page struct {
	Doc   template.HTML
	AppId string
}

// UI serves the reference and a little WebSocket console.
type UI struct {
	Log zerolog.Logger
	doc template.HTML
}

func NewUI(log zerolog.Logger) *UI {
	return &UI{
		Log: log,
		doc: template.HTML(md.Run(reference)),
	}
}

func (u *UI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	p := &page{
		Doc:   u.doc,
		AppId: uuid.New().String(),
	}
	if err := uiTemplate.Execute(w, p); err != nil {
		u.Log.Warn().Err(err).Msg("ui")
	}
}

var uiTemplate = template.Must(template.New("").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>evbus</title>
<script>
window.addEventListener("load", function(evt) {

    var output = document.getElementById("output");
    var input = document.getElementById("input");
    var ws;

    var print = function(message) {
        var d = document.createElement("div");
        d.textContent = message;
        output.insertBefore(d, output.firstChild);
    };

    document.getElementById("open").onclick = function(evt) {
        if (ws) {
            return false;
        }
        var scheme = location.protocol == "https:" ? "wss://" : "ws://";
        ws = new WebSocket(scheme + location.host + "/ws?app={{.AppId}}");
        ws.onopen = function(evt) {
            print("OPEN");
            ws.send('{"Action":"Hello"}');
        }
        ws.onclose = function(evt) {
            print("CLOSE");
            ws = null;
        }
        ws.onmessage = function(evt) {
            print("RECEIVED: " + evt.data);
        }
        ws.onerror = function(evt) {
            print("ERROR");
        }
        return false;
    };

    document.getElementById("send").onclick = function(evt) {
        if (!ws) {
            return false;
        }
        print("SEND: " + input.value);
        ws.send(input.value);
        return false;
    };

    document.getElementById("close").onclick = function(evt) {
        if (!ws) {
            return false;
        }
        ws.close();
        return false;
    };

});
</script>
<style>
body { margin: 2em; font-family: sans-serif }
code, pre, #output { font-family: monospace }
</style>
</head>
<body>
<div class="doc">{{.Doc}}</div>
<hr>
<form>
<button id="open">Open connection</button>
<button id="close">Close connection</button>
<br><input id="input" size="100" type="text" value='{"Action":"Subscribe","Rule":"orders","Pattern":{"source":["orders"]}}'>
<br><button id="send">Send</button>
</form>
<hr>
<div id="output"></div>
</body>
</html>
`))
