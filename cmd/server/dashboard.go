package main

import (
	"net/http"
)

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write([]byte(dashboardHTML))
}

// Identities are caller-controlled strings, so the script only ever writes
// them through textContent.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>AccessFlow Dashboard</title>
    <style>
        body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem; color: #222; background: #f4f5f7; }
        h1 { margin-bottom: 0.25rem; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; margin: 1.5rem 0; }
        .card { background: #fff; border-radius: 8px; padding: 1rem 1.25rem; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
        .label { font-size: .8rem; text-transform: uppercase; color: #666; }
        .value { font-size: 2rem; font-weight: 600; }
        .sub { font-size: .85rem; color: #888; }
        .ok { color: #2e7d32; } .bad { color: #c62828; } .warn { color: #ef6c00; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: .5rem; border-bottom: 1px solid #eee; }
        td.id { font-family: monospace; word-break: break-all; }
    </style>
</head>
<body>
    <h1>AccessFlow</h1>
    <p>Admission control: <span id="policy">loading</span></p>

    <div class="grid">
        <div class="card"><div class="label">Total Requests</div><div class="value" id="totalRequests">0</div></div>
        <div class="card"><div class="label">Allowed</div><div class="value ok" id="allowedRequests">0</div><div class="sub" id="allowRate">0% allowed</div></div>
        <div class="card"><div class="label">Rate Limited / Blocked</div><div class="value bad" id="deniedRequests">0 / 0</div><div class="sub" id="denyRate">0% denied</div></div>
        <div class="card"><div class="label">Blocked Identities</div><div class="value warn" id="blockedIdentities">0</div><div class="sub" id="tracked">0 tracked</div></div>
    </div>

    <div class="card">
        <h2>Top Identities</h2>
        <table>
            <thead>
                <tr><th>Identity</th><th>Total</th><th>Allowed</th><th>Rate Limited</th><th>Blocked</th><th>Last Seen</th></tr>
            </thead>
            <tbody id="topIdentitiesTable"></tbody>
        </table>
    </div>

    <script>
        function setText(id, text) {
            document.getElementById(id).textContent = text;
        }

        function cell(text, className) {
            const td = document.createElement('td');
            td.textContent = text;
            if (className) td.className = className;
            return td;
        }

        function placeholder(text) {
            const tr = document.createElement('tr');
            const td = cell(text);
            td.colSpan = 6;
            tr.appendChild(td);
            return tr;
        }

        function updateDashboard(data) {
            const denied = data.rate_limited_requests + data.blocked_requests;

            setText('totalRequests', data.total_requests.toLocaleString());
            setText('allowedRequests', data.allowed_requests.toLocaleString());
            setText('deniedRequests',
                data.rate_limited_requests.toLocaleString() + ' / ' + data.blocked_requests.toLocaleString());

            if (data.total_requests > 0) {
                setText('allowRate', ((data.allowed_requests / data.total_requests) * 100).toFixed(1) + '% allowed');
                setText('denyRate', ((denied / data.total_requests) * 100).toFixed(1) + '% denied');
            }

            if (data.table) {
                setText('blockedIdentities', data.table.blocked.toLocaleString());
                setText('tracked', data.table.tracked.toLocaleString() + ' tracked');
                setText('policy', data.table.max_requests + ' requests per ' +
                    (data.table.interval / 1e9) + 's, decay ' + data.table.decay);
            }

            const tbody = document.getElementById('topIdentitiesTable');
            const rows = [];
            for (const id of data.top_identities || []) {
                const tr = document.createElement('tr');
                tr.appendChild(cell(id.identity, 'id'));
                tr.appendChild(cell(id.total_requests.toLocaleString()));
                tr.appendChild(cell(String(id.allowed_requests), 'ok'));
                tr.appendChild(cell(String(id.rate_limited_requests), 'bad'));
                tr.appendChild(cell(String(id.blocked_requests), 'bad'));
                tr.appendChild(cell(new Date(id.last_request_at).toLocaleTimeString()));
                rows.push(tr);
            }
            if (rows.length === 0) rows.push(placeholder('No requests yet'));
            tbody.replaceChildren(...rows);
        }

        async function fetchMetrics() {
            try {
                const response = await fetch('/metrics');
                updateDashboard(await response.json());
            } catch (error) {
                console.error('Failed to fetch metrics:', error);
            }
        }

        document.getElementById('topIdentitiesTable').replaceChildren(placeholder('Loading...'));
        fetchMetrics();
        setInterval(fetchMetrics, 2000);
    </script>
</body>
</html>`
