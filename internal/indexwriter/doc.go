// Package indexwriter projects entities into the retrieval store.
//
// Each document fans out into one entity row, one row per fact, and one row
// per link, replaced as a single atomic set so a concurrent query never sees
// a partially written document. Long-form text is chunked and embedded; a
// chunk whose content hash matches a previously stored vector reuses it
// without calling the provider, which makes an unchanged re-sync free of
// embedding work.
package indexwriter
