// Package parser extracts structured content from document text.
//
// Parse is a pure, total function over UTF-8 text: it never returns an
// error. A leading "---" delimited YAML block supplies metadata; the body is
// scanned line by line for facts and typed links.
//
// Fact syntax:
//
//	- [decision] Use blue-green deploys #ops #release (agreed in review)
//
// yields one Fact with category "decision", two tags, and a context string.
// A tagged list item without a category gets the default category. Checkbox
// items and markdown hyperlinks are never facts.
//
// Link syntax, two forms:
//
//	- implements [[Design Doc]] (phase 1)    explicit, typed
//	see [[Design Doc]] for details           inline, "links_to"
//
// A bare "- [[Target]]" list item is the explicit form with the default
// "relates_to" relation. Targets may not exist yet; the parser only records
// names, resolution happens downstream.
package parser
