// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /api/sb2gs/?id=<project id> (alias /sb2gs/) decompiles a project
//     and returns the generated sources as a zip.
//   - GET /ping and /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET / and /about for the rendered endpoint documentation.
package api
