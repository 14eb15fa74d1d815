// Command backend serves pages for trying stealthfetch by hand:
//
//	go run ./scripts/test 3000
//	stealthfetch localhost:3000/challenge?seconds=3 --challenge-timeout 10
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

const fingerprintPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Fingerprint</title></head>
<body>
<pre id="report"></pre>
<script>
  const report = {
    webdriver: navigator.webdriver,
    userAgent: navigator.userAgent,
    languages: navigator.languages,
    plugins: navigator.plugins.length,
    chrome: typeof window.chrome,
    outer: [window.outerWidth, window.outerHeight],
  };
  document.getElementById('report').textContent = JSON.stringify(report, null, 2);
</script>
</body>
</html>`

const challengePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Just a moment...</title></head>
<body>
<div id="challenge-running">Checking your browser before accessing the site.</div>
<script>
  setTimeout(() => {
    document.getElementById('challenge-running').remove();
    document.title = 'Challenge Passed';
    document.body.insertAdjacentHTML('beforeend', '<h1>Welcome</h1>');
  }, %d);
</script>
</body>
</html>`

func main() {
	port := "3000"
	if len(os.Args) > 1 {
		port = os.Args[1]
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en"><head><title>stealthfetch Test Backend</title></head>
<body><h1>stealthfetch Test Backend</h1><p>Plain page, no checks.</p></body></html>`)
	})

	mux.HandleFunc("/fingerprint", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, fingerprintPage)
	})

	// Simulated interstitial that clears itself after ?seconds=N (default 3)
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		seconds, err := strconv.Atoi(r.URL.Query().Get("seconds"))
		if err != nil || seconds < 0 {
			seconds = 3
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, challengePage, seconds*1000)
	})

	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>Forbidden</title></head><body><h1>Access Denied</h1></body></html>`)
	})

	// Request headers as seen by the server
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method":  r.Method,
			"path":    r.URL.Path,
			"headers": r.Header,
		})
	})

	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><head><title>Slow</title></head><body>Finally.</body></html>`)
	})

	addr := ":" + port
	fmt.Printf("Test backend server starting on http://localhost%s\n", addr)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /                  - Plain HTML page")
	fmt.Println("  GET  /fingerprint       - Automation fingerprint report")
	fmt.Println("  GET  /challenge?seconds - Interstitial that clears after N seconds")
	fmt.Println("  GET  /blocked           - 403 Access Denied page")
	fmt.Println("  GET  /echo              - Request headers (JSON)")
	fmt.Println("  GET  /slow              - Page delayed by 2s")
	fmt.Println("\nPress Ctrl+C to stop")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
