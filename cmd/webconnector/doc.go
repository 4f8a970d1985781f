// Command webconnector crawls a website into batches of documents.
//
// Usage:
//
//	webconnector crawl --base-url https://docs.example.com --mode recursive
//	webconnector crawl --base-url https://example.com/sitemap.xml --mode sitemap --output docs.jsonl
//	webconnector slim --connector-id 1 --credential-id 2 --db-dsn postgres://...
//
// Every flag has a WEBCONNECTOR_* environment equivalent, e.g.
// WEBCONNECTOR_CONNECTOR_BASE_URL, and may also be set in a --config file.
// Set --metrics-addr to expose /metrics, /healthz and /v1/status while running.
package main
