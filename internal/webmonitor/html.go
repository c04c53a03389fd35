package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Driver Drowsiness Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: system-ui, sans-serif; background: #111; color: #eee; }
        .app { max-width: 1100px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; margin-top: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 12px; }
        .badge { padding: 4px 10px; border-radius: 12px; font-weight: 600; background: #444; }
        .badge.alert { background: #1b7f3a; }
        .badge.drowsy { background: #b3261e; }
        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        td, th { padding: 4px; text-align: left; border-bottom: 1px solid #333; }
        img { width: 100%; height: auto; display: block; background: #000; }
        .muted { color: #999; font-size: 12px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h1>Driver Drowsiness Monitor</h1>
            <span class="badge" id="state-badge">Waiting for data...</span>
        </div>

        <div class="grid">
            <div class="panel">
                <h2>Live Feed</h2>
                <img id="stream" src="/stream" alt="Annotated camera feed">
                <p class="muted">Annotated frames as shown in the preview window.</p>
            </div>

            <div class="panel">
                <h2>Status</h2>
                <table>
                    <tr><th>EAR</th><td id="ear">-</td></tr>
                    <tr><th>Left / Right</th><td id="eyes">-</td></tr>
                    <tr><th>Threshold</th><td id="threshold">-</td></tr>
                    <tr><th>FPS</th><td id="fps">-</td></tr>
                    <tr><th>Frames</th><td id="frames">-</td></tr>
                    <tr><th>Frame errors</th><td id="errors">-</td></tr>
                    <tr><th>Notifications</th><td id="notify">-</td></tr>
                    <tr><th>Session</th><td id="session" class="muted">-</td></tr>
                </table>

                <h2>Recent readings</h2>
                <table id="history"></table>
            </div>
        </div>
    </div>

    <script>
        const fmt = (v) => (typeof v === 'number' ? v.toFixed(3) : '-');

        function render(status) {
            const latest = status.latest_reading;
            const badge = document.getElementById('state-badge');
            if (latest) {
                badge.textContent = latest.state;
                badge.className = 'badge ' + latest.state.toLowerCase();
                document.getElementById('ear').textContent = fmt(latest.ear);
                document.getElementById('eyes').textContent = fmt(latest.left_ear) + ' / ' + fmt(latest.right_ear);
            }
            document.getElementById('threshold').textContent = fmt(status.threshold);
            document.getElementById('fps').textContent = status.monitor.current_fps.toFixed(1);
            document.getElementById('frames').textContent = status.monitor.frames_processed;
            document.getElementById('errors').textContent = status.monitor.frame_errors;
            document.getElementById('notify').textContent =
                status.notify.sent + ' sent, ' + status.notify.failed + ' failed, ' + status.notify.skipped + ' skipped';
            document.getElementById('session').textContent = status.session_id || '-';

            const rows = (status.reading_history || []).map((r) =>
                '<tr><td>#' + r.frame_number + '</td><td>' + r.state + '</td><td>' + fmt(r.ear) + '</td></tr>');
            document.getElementById('history').innerHTML = rows.join('');
        }

        fetch('/api/status').then((r) => r.json()).then(render).catch(() => {});

        const events = new EventSource('/api/status/stream');
        events.onmessage = (e) => render(JSON.parse(e.data));
    </script>
</body>
</html>
`
