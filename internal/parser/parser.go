package parser

import (
	"regexp"
	"strings"

	"github.com/dshills/memograph/pkg/types"
)

var (
	listItemRe = regexp.MustCompile(`^\s*-\s+(.*)$`)
	checkboxRe = regexp.MustCompile(`^\[[ xX]\]`)
	categoryRe = regexp.MustCompile(`^\[([^\[\]()]+)\]\s*(.*)$`)
	tagRe      = regexp.MustCompile(`#([A-Za-z0-9_/-]+)`)
	contextRe  = regexp.MustCompile(`\(([^()]*)\)\s*$`)
	headingRe  = regexp.MustCompile(`^#\s+(.+)$`)
	relationRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Parse extracts metadata, facts, and typed links from document text. It is
// a pure, total function: malformed input degrades to empty extraction,
// never an error. Lines matching no known pattern are plain prose.
func Parse(text string) *types.ParsedDocument {
	text = strings.TrimPrefix(text, "\uFEFF")

	block, body := splitFrontmatter(text)
	doc := &types.ParsedDocument{
		Metadata: parseFrontmatter(block),
		Facts:    []types.Fact{},
		Links:    []types.Link{},
		Body:     body,
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")

		if doc.Metadata.Title == "" {
			if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				doc.Metadata.Title = strings.TrimSpace(m[1])
			}
		}

		if m := listItemRe.FindStringSubmatch(line); m != nil {
			parseListItem(doc, m[1])
			continue
		}

		// Prose line: only inline wiki targets matter
		for _, target := range extractWikiTargets(line) {
			addLink(doc, types.Link{Relation: types.RelationInline, TargetName: target.name})
		}
	}

	return doc
}

// parseListItem classifies one list item as a typed link, a fact, or prose.
// Checkbox items and markdown hyperlinks are never facts.
func parseListItem(doc *types.ParsedDocument, item string) {
	item = strings.TrimSpace(item)

	if checkboxRe.MatchString(item) {
		return
	}

	if relation, target, context, ok := matchTypedLink(item); ok {
		addLink(doc, types.Link{Relation: relation, TargetName: target, Context: context})
		return
	}

	targets := extractWikiTargets(item)
	for _, target := range targets {
		addLink(doc, types.Link{Relation: types.RelationInline, TargetName: target.name})
	}

	if isMarkdownHyperlink(item) {
		return
	}

	if m := categoryRe.FindStringSubmatch(item); m != nil {
		addFact(doc, strings.TrimSpace(m[1]), m[2])
		return
	}

	// A tagged line without a category still yields a fact
	if tagRe.MatchString(item) {
		addFact(doc, types.DefaultFactCategory, item)
	}
}

// matchTypedLink recognizes the explicit link form: an optional single-token
// relation, one wiki target, and an optional trailing context. Anything else
// on the line makes it prose, not a typed link.
func matchTypedLink(item string) (relation, target, context string, ok bool) {
	targets := extractWikiTargets(item)
	if len(targets) != 1 {
		return "", "", "", false
	}

	prefix := strings.TrimSpace(item[:targets[0].start])
	if prefix != "" && !relationRe.MatchString(prefix) {
		return "", "", "", false
	}

	suffix := strings.TrimSpace(item[targets[0].end:])
	if suffix != "" {
		m := contextRe.FindStringSubmatch(suffix)
		if m == nil || strings.TrimSpace(suffix[:len(suffix)-len(m[0])]) != "" {
			return "", "", "", false
		}
		context = strings.TrimSpace(m[1])
	}

	relation = prefix
	if relation == "" {
		relation = types.RelationDefault
	}
	return relation, targets[0].name, context, true
}

func addFact(doc *types.ParsedDocument, category, raw string) {
	fact := types.Fact{Category: category, Tags: []string{}}

	if m := contextRe.FindStringSubmatch(raw); m != nil {
		fact.Context = strings.TrimSpace(m[1])
		raw = raw[:len(raw)-len(m[0])]
	}

	for _, m := range tagRe.FindAllStringSubmatch(raw, -1) {
		fact.Tags = append(fact.Tags, m[1])
	}
	raw = tagRe.ReplaceAllString(raw, "")

	fact.Content = strings.Join(strings.Fields(raw), " ")
	if fact.Content == "" && len(fact.Tags) == 0 {
		return
	}
	doc.Facts = append(doc.Facts, fact)
}

func addLink(doc *types.ParsedDocument, link types.Link) {
	// The [[rel::Target]] shorthand carries its own relation; an explicit
	// list-item relation is never overridden by it
	if link.Relation == types.RelationInline || link.Relation == types.RelationDefault {
		if rel, target, ok := splitTypedTarget(link.TargetName); ok {
			link.Relation = rel
			link.TargetName = target
		}
	}
	if link.TargetName == "" {
		return
	}
	doc.Links = append(doc.Links, link)
}

// splitTypedTarget recognizes the rel::Target form inside a wiki target. The
// relation must be a single relation token; anything else leaves the name
// whole.
func splitTypedTarget(name string) (relation, target string, ok bool) {
	rel, rest, found := strings.Cut(name, "::")
	if !found {
		return "", "", false
	}
	rel = strings.TrimSpace(rel)
	rest = strings.TrimSpace(rest)
	if rest == "" || !relationRe.MatchString(rel) {
		return "", "", false
	}
	return rel, rest, true
}

func isMarkdownHyperlink(item string) bool {
	idx := strings.Index(item, "](")
	return strings.HasPrefix(item, "[") && idx > 0
}

// wikiTarget is one [[Name]] occurrence with its span in the source line.
type wikiTarget struct {
	name  string
	start int
	end   int
}

// extractWikiTargets finds [[Target]] occurrences, tracking nested bracket
// depth so malformed input like [[A [[B]] ]] cannot corrupt the target name.
// An unterminated opener ends the scan.
func extractWikiTargets(s string) []wikiTarget {
	var targets []wikiTarget

	i := 0
	for i+1 < len(s) {
		if s[i] != '[' || s[i+1] != '[' {
			i++
			continue
		}

		depth := 1
		j := i + 2
		for j < len(s) && depth > 0 {
			switch {
			case j+1 < len(s) && s[j] == '[' && s[j+1] == '[':
				depth++
				j += 2
			case j+1 < len(s) && s[j] == ']' && s[j+1] == ']':
				depth--
				j += 2
			default:
				j++
			}
		}
		if depth > 0 {
			break
		}

		if name := cleanTargetName(s[i+2 : j-2]); name != "" {
			targets = append(targets, wikiTarget{name: name, start: i, end: j})
		}
		i = j
	}
	return targets
}

// cleanTargetName strips nested bracket markers and collapses whitespace.
func cleanTargetName(inner string) string {
	inner = strings.ReplaceAll(inner, "[[", " ")
	inner = strings.ReplaceAll(inner, "]]", " ")
	return strings.Join(strings.Fields(inner), " ")
}
