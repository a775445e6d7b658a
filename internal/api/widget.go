package api

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"text/template"
)

var widgetTmpl = template.Must(template.New("widget").Parse(`(function() {
  var chatbotId = '{{js .ChatbotID}}';
  var sessionId = 'w-' + Math.random().toString(36).slice(2) + Date.now().toString(36);
  var wsUrl = '{{js .WSURL}}?sessionId=' + encodeURIComponent(sessionId);

  var root = document.createElement('div');
  root.id = 'botsmith-widget';
  root.style.cssText = 'position:fixed;bottom:20px;right:20px;z-index:10000;font-family:sans-serif;';
  root.innerHTML =
    '<div id="botsmith-bubble" style="width:60px;height:60px;background:#2563eb;border-radius:50%;cursor:pointer;display:flex;align-items:center;justify-content:center;box-shadow:0 4px 12px rgba(0,0,0,0.3);">' +
      '<svg width="24" height="24" fill="white" viewBox="0 0 24 24"><path d="M20 2H4c-1.1 0-2 .9-2 2v12c0 1.1.9 2 2 2h4l4 4 4-4h4c1.1 0 2-.9 2-2V4c0-1.1-.9-2-2-2z"/></svg>' +
    '</div>' +
    '<div id="botsmith-window" style="display:none;position:absolute;bottom:70px;right:0;width:350px;height:500px;background:white;border-radius:10px;box-shadow:0 8px 30px rgba(0,0,0,0.3);overflow:hidden;">' +
      '<div style="background:#2563eb;color:white;padding:15px;font-weight:bold;">{{js .Title}}</div>' +
      '<div id="botsmith-messages" style="height:400px;overflow-y:auto;padding:15px;"></div>' +
      '<div style="padding:15px;border-top:1px solid #eee;display:flex;gap:10px;">' +
        '<input type="text" id="botsmith-input" placeholder="Type a message..." style="flex:1;padding:10px;border:1px solid #ddd;border-radius:5px;outline:none;">' +
        '<button id="botsmith-send" style="padding:10px 15px;background:#2563eb;color:white;border:none;border-radius:5px;cursor:pointer;">Send</button>' +
      '</div>' +
    '</div>';
  document.body.appendChild(root);

  var bubble = document.getElementById('botsmith-bubble');
  var panel = document.getElementById('botsmith-window');
  var input = document.getElementById('botsmith-input');
  var sendBtn = document.getElementById('botsmith-send');
  var list = document.getElementById('botsmith-messages');
  var ws = null;
  var open = false;

  function addMessage(content, type) {
    var row = document.createElement('div');
    row.style.marginBottom = '10px';
    var body = document.createElement('div');
    body.textContent = content;
    body.style.cssText = 'padding:10px;border-radius:10px;max-width:80%;' +
      (type === 'user' ? 'background:#2563eb;color:white;margin-left:auto;' : 'background:#f1f1f1;color:black;');
    row.appendChild(body);
    list.appendChild(row);
    list.scrollTop = list.scrollHeight;
  }

  function connect() {
    ws = new WebSocket(wsUrl);
    ws.onmessage = function(event) {
      var data = JSON.parse(event.data);
      if (data.type === 'bot_message') {
        addMessage(data.message.content, 'bot');
      } else if (data.error) {
        addMessage(data.error, 'bot');
      }
    };
    ws.onclose = function() { ws = null; };
  }

  function send() {
    var text = input.value.trim();
    if (!text || !ws || ws.readyState !== WebSocket.OPEN) {
      return;
    }
    addMessage(text, 'user');
    ws.send(JSON.stringify({ type: 'user_message', content: text, chatbotId: chatbotId }));
    input.value = '';
  }

  bubble.onclick = function() {
    open = !open;
    panel.style.display = open ? 'block' : 'none';
    if (open && !ws) {
      connect();
      addMessage('Hello! How can I help you today?', 'bot');
    }
  };
  sendBtn.onclick = send;
  input.onkeypress = function(e) {
    if (e.key === 'Enter') {
      send();
    }
  };
})();
`))

type widgetData struct {
	ChatbotID string
	WSURL     string
	Title     string
}

func (s *Server) widget(w http.ResponseWriter, r *http.Request) {
	chatbotID := strings.TrimSpace(r.URL.Query().Get("chatbotId"))
	if chatbotID == "" {
		chatbotID = "demo"
	}

	var buf bytes.Buffer
	if err := widgetTmpl.Execute(&buf, widgetData{
		ChatbotID: chatbotID,
		WSURL:     s.wsURL(r),
		Title:     "BotSmith",
	}); err != nil {
		s.log.Error().Err(err).Msg("render widget")
		Error(w, http.StatusInternalServerError, "Failed to render widget")
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(buf.Bytes())
}

// wsURL is the websocket endpoint as seen from the embedding page.
func (s *Server) wsURL(r *http.Request) string {
	if u, err := url.Parse(s.cfg.PublicURL); err == nil && u.Host != "" {
		scheme := "ws"
		if u.Scheme == "https" {
			scheme = "wss"
		}
		return scheme + "://" + u.Host + strings.TrimRight(u.Path, "/") + "/ws"
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}
