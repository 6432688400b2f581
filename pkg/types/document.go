package types

// DefaultFactCategory is assigned to tagged list items that carry no
// explicit [category] marker.
const DefaultFactCategory = "note"

// Link relation defaults.
const (
	// RelationDefault is used for explicit list-item links with no stated type.
	RelationDefault = "relates_to"
	// RelationInline is used for [[Target]] references found in running text.
	RelationInline = "links_to"
)

// Metadata holds the key/value header block of a document.
//
// Known fields are promoted to struct fields; every unrecognized key is kept
// in Extra after normalization. All values are string-typed regardless of
// their original YAML shape: dates become canonical date strings, numbers
// and booleans are coerced, and collections are flattened recursively.
type Metadata struct {
	Title  string
	Kind   string
	Slug   string // explicit slug override, optional
	Schema string // schema reference, optional
	Tags   []string
	Extra  map[string]string
}

// Fact is an atomic categorized statement extracted from a document body.
// Facts belong to exactly one document and are regenerated wholesale on
// every re-sync of that document.
type Fact struct {
	Category string
	Content  string
	Context  string
	Tags     []string
}

// Link is a directed typed reference to another document. TargetName is
// always set; resolution against an actual entity happens later, so a Link
// by itself never points at an in-memory object.
type Link struct {
	Relation   string
	TargetName string
	Context    string
}

// ParsedDocument is the output of the semantic parser: metadata plus the
// ordered facts and links found in the body. Parsing is total; malformed
// input degrades to empty extraction, never an error.
type ParsedDocument struct {
	Metadata Metadata
	Facts    []Fact
	Links    []Link
	Body     string // full body text, header block stripped
}

// Tag returns true if the fact carries the given tag.
func (f *Fact) Tag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
