package server

// indexHTML is the chat page: transcript bubbles, an input box, a speech
// toggle, and per-message play controls driven by the /ws session protocol.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pizza Chat</title>
<style>
  body { margin: 0; font-family: -apple-system, Segoe UI, sans-serif; background: #f3f4f6; }
  main { display: flex; flex-direction: column; max-width: 640px; height: 100vh; margin: 0 auto; background: #fff; }
  #chat { flex: 1; overflow-y: auto; padding: 16px; }
  .bubble { max-width: 75%; margin-top: 8px; padding: 10px 14px; border-radius: 12px; font-size: 14px; line-height: 1.4; }
  .assistant { background: #e5e7eb; color: #111; border-bottom-left-radius: 2px; }
  .user { background: #2563eb; color: #fff; margin-left: auto; border-bottom-right-radius: 2px; }
  .error { background: #fee2e2; color: #991b1b; border: 1px solid #fca5a5; }
  .bubble button { margin-top: 6px; display: block; font-size: 12px; cursor: pointer; }
  .bubble button:disabled { cursor: default; opacity: 0.5; }
  form { display: flex; gap: 8px; padding: 12px; background: #e5e7eb; }
  form input[type=text] { flex: 1; height: 38px; border: none; border-radius: 6px; padding: 0 12px; font-size: 14px; }
  label { display: flex; align-items: center; gap: 4px; font-size: 13px; color: #374151; }
</style>
</head>
<body>
<main>
  <div id="chat"></div>
  <form id="composer">
    <input id="input" type="text" placeholder="Type your message..." autocomplete="off" autofocus>
    <label><input id="speech" type="checkbox" checked> Speech</label>
  </form>
</main>
<script>
  var chat = document.getElementById('chat');
  var form = document.getElementById('composer');
  var input = document.getElementById('input');
  var speech = document.getElementById('speech');
  var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(proto + location.host + '/ws');
  var clips = {};   // message id -> decoded audio bytes
  var playing = {}; // message id -> true while that clip is playing

  function addBubble(cls, text) {
    var div = document.createElement('div');
    div.className = 'bubble ' + cls;
    div.textContent = text;
    chat.appendChild(div);
    chat.scrollTop = chat.scrollHeight;
    return div;
  }

  function decodeAudio(b64) {
    var raw = atob(b64);
    var bytes = new Uint8Array(raw.length);
    for (var i = 0; i < raw.length; i++) bytes[i] = raw.charCodeAt(i);
    return bytes;
  }

  function mimeFor(bytes) {
    // WAV clips start with RIFF; everything else the server sends is MP3.
    if (bytes.length > 3 && bytes[0] === 0x52 && bytes[1] === 0x49 && bytes[2] === 0x46 && bytes[3] === 0x46) {
      return 'audio/wav';
    }
    return 'audio/mpeg';
  }

  function play(id, button) {
    var bytes = clips[id];
    if (!bytes || playing[id]) return;
    playing[id] = true;
    if (button) button.disabled = true;
    var url = URL.createObjectURL(new Blob([bytes], { type: mimeFor(bytes) }));
    var audio = new Audio(url);
    audio.onended = audio.onerror = function () {
      playing[id] = false;
      if (button) button.disabled = false;
      URL.revokeObjectURL(url);
    };
    audio.play();
  }

  ws.onmessage = function (event) {
    var env = JSON.parse(event.data);
    var p = env.payload || {};
    if (env.type === 'append') {
      var msg = p.message;
      var div = addBubble(msg.role === 'user' ? 'user' : 'assistant', msg.content);
      if (msg.audio) {
        clips[msg.id] = decodeAudio(msg.audio);
        var btn = document.createElement('button');
        btn.textContent = 'Play';
        btn.onclick = function () { play(msg.id, btn); };
        div.appendChild(btn);
      }
    } else if (env.type === 'play') {
      var btn = null;
      var buttons = chat.getElementsByTagName('button');
      if (buttons.length > 0) btn = buttons[buttons.length - 1];
      play(p.message_id, btn);
    } else if (env.type === 'error') {
      addBubble('assistant error', 'Something went wrong (' + p.gateway + '). Please try again.');
    }
  };

  ws.onclose = function () {
    addBubble('assistant error', 'Connection lost. Reload the page to start over.');
  };

  form.onsubmit = function (event) {
    event.preventDefault();
    var text = input.value.trim();
    if (!text) return;
    ws.send(JSON.stringify({ type: 'user_message', payload: { content: text } }));
    input.value = '';
  };

  speech.onchange = function () {
    ws.send(JSON.stringify({ type: 'set_speech', payload: { enabled: speech.checked } }));
  };
</script>
</body>
</html>
`
