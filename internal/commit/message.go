package commit

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/uniseg"

	"github.com/bashhack/gitwatch/internal/change"
)

// TimestampLayout is the rendering of {timestamp}.
const TimestampLayout = "2006-01-02 15:04:05"

// listedFiles is how many paths {files} spells out before eliding the rest.
const listedFiles = 3

// MessageData feeds the placeholders of a commit message template.
type MessageData struct {
	Timestamp time.Time
	Events    []change.Event
	Branch    string
}

// RenderMessage substitutes the supported placeholders in template:
//
//	{timestamp}    flush time as "2006-01-02 15:04:05"
//	{files_count}  number of files in this commit
//	{files}        first three paths, then "..."
//	{change_type}  added, modified, deleted or mixed
//	{category}     dominant file category (code, config, docs, style, test, other)
//	{branch}       current branch, empty when unknown
//
// Unknown placeholders are left as they are.
func RenderMessage(template string, data MessageData) string {
	r := strings.NewReplacer(
		"{timestamp}", data.Timestamp.Format(TimestampLayout),
		"{files_count}", strconv.Itoa(len(data.Events)),
		"{files}", fileList(data.Events),
		"{change_type}", ChangeType(data.Events),
		"{category}", DominantCategory(data.Events),
		"{branch}", data.Branch,
	)
	return r.Replace(template)
}

// Truncate shortens msg to at most max user-perceived characters. Grapheme
// clusters are never split, so multi-byte text stays valid.
func Truncate(msg string, max int) string {
	if max <= 0 {
		return ""
	}
	if uniseg.GraphemeClusterCount(msg) <= max {
		return msg
	}

	var b strings.Builder
	g := uniseg.NewGraphemes(msg)
	for n := 0; n < max && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return b.String()
}

func fileList(events []change.Event) string {
	paths := change.Paths(events)
	if len(paths) <= listedFiles {
		return strings.Join(paths, ", ")
	}
	return strings.Join(paths[:listedFiles], ", ") + "..."
}

// ChangeType summarizes the kinds in events.
func ChangeType(events []change.Event) string {
	if len(events) == 0 {
		return ""
	}
	first := events[0].Kind
	for _, ev := range events[1:] {
		if ev.Kind != first {
			return "mixed"
		}
	}
	switch first {
	case change.Created:
		return "added"
	case change.Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

var categoryOrder = []string{"code", "config", "docs", "style", "test", "other"}

var categoryExtensions = map[string][]string{
	"code":   {".go", ".py", ".js", ".ts", ".jsx", ".tsx", ".rs", ".java", ".c", ".cpp", ".h", ".rb", ".sh"},
	"config": {".json", ".yml", ".yaml", ".toml", ".ini", ".cfg", ".env"},
	"docs":   {".md", ".txt", ".rst", ".doc", ".docx", ".adoc"},
	"style":  {".css", ".scss", ".sass", ".less"},
}

// Category classifies a single path by name and extension.
func Category(p string) string {
	lower := strings.ToLower(p)
	name := path.Base(lower)
	if strings.HasPrefix(name, "test_") || strings.Contains(name, "_test.") ||
		strings.Contains(name, ".test.") || strings.Contains(name, ".spec.") {
		return "test"
	}

	ext := path.Ext(name)
	for _, cat := range categoryOrder {
		for _, e := range categoryExtensions[cat] {
			if ext == e {
				return cat
			}
		}
	}
	return "other"
}

// DominantCategory returns the most frequent category in events. Ties go to
// the category listed first in categoryOrder.
func DominantCategory(events []change.Event) string {
	if len(events) == 0 {
		return ""
	}

	counts := make(map[string]int, len(categoryOrder))
	for _, ev := range events {
		counts[Category(ev.Path)]++
	}

	best := ""
	for _, cat := range categoryOrder {
		if counts[cat] > counts[best] {
			best = cat
		}
	}
	return best
}
