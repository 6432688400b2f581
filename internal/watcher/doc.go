// Package watcher turns filesystem notifications into debounced sync
// triggers. It deliberately carries no per-file detail: the change detector
// re-derives the full change set from disk, so the watcher only has to say
// "something happened" once per burst of edits.
package watcher
