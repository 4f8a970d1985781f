// Package crawler defines the domain types, collaborator interfaces, and URL
// helpers shared by the web connector's frontier, fetchers, extractors, and
// crawl loop.
package crawler
