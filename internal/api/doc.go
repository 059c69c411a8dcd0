// Package api hosts the render service HTTP server. Routes:
//   - POST /screenshot returns a JPEG of the requested page.
//   - POST /combined returns the page HTML and a base64 JPEG as JSON.
//   - GET /status reports browser and request counters.
//   - GET /health for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
