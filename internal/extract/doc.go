// Package extract turns fetched bytes into crawl output: in-scope links,
// cleaned page text, and PDF text with metadata.
package extract
