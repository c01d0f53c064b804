package note

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/timer"
)

const frontmatterFence = "---"

// Totals are the day's sums kept in a record note's frontmatter.
type Totals struct {
	Edits     int
	Words     int
	EditTime  time.Duration
	ReadTime  time.Duration
	TotalTime time.Duration
}

// Add accumulates a snapshot.
func (t *Totals) Add(s model.Snapshot) {
	t.Edits += s.EditedTimes
	t.Words += s.EditedWords
	t.EditTime += s.EditTime
	t.ReadTime += s.ReadTime
	t.TotalTime += s.EditTime + s.ReadTime
}

type totalField struct {
	count    func(t *Totals) *int
	duration func(t *Totals) *time.Duration
}

var totalFields = map[string]totalField{
	"totalEdits":    {count: func(t *Totals) *int { return &t.Edits }},
	"totalWords":    {count: func(t *Totals) *int { return &t.Words }},
	"totalEditTime": {duration: func(t *Totals) *time.Duration { return &t.EditTime }},
	"totalReadTime": {duration: func(t *Totals) *time.Duration { return &t.ReadTime }},
	"totalTime":     {duration: func(t *Totals) *time.Duration { return &t.TotalTime }},
}

// metadataLine is one "Key: ${field}" line of a metadata template.
type metadataLine struct {
	key   string
	field string
}

func parseMetadataSyntax(syntax string) ([]metadataLine, error) {
	var out []metadataLine
	for _, line := range strings.Split(syntax, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		m := placeholder.FindStringSubmatch(value)
		if !ok || m == nil || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: metadata line %q needs \"Key: ${field}\"", ErrInvalidSyntax, line)
		}
		if _, known := totalFields[m[1]]; !known {
			return nil, fmt.Errorf("%w: unknown metadata field %q", ErrInvalidSyntax, m[1])
		}
		out = append(out, metadataLine{key: strings.TrimSpace(key), field: m[1]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty metadata syntax", ErrInvalidSyntax)
	}
	return out, nil
}

// splitFrontmatter separates a leading YAML block from the body. ok is false
// when the note has no frontmatter.
func splitFrontmatter(content string) (front, body string, ok bool) {
	if !strings.HasPrefix(content, frontmatterFence+"\n") {
		return "", content, false
	}
	rest := content[len(frontmatterFence)+1:]
	if strings.HasPrefix(rest, frontmatterFence) {
		return "", strings.TrimPrefix(strings.TrimPrefix(rest, frontmatterFence), "\n"), true
	}
	idx := strings.Index(rest, "\n"+frontmatterFence)
	if idx < 0 {
		return "", content, false
	}
	front = rest[:idx+1]
	body = rest[idx+1+len(frontmatterFence):]
	body = strings.TrimPrefix(body, "\n")
	return front, body, true
}

// mergeFrontmatter adds totals to the values already in the note's
// frontmatter and returns the updated note. Keys the template does not
// name are kept untouched.
func mergeFrontmatter(content string, lines []metadataLine, add Totals, seconds bool) (string, error) {
	front, body, _ := splitFrontmatter(content)

	var doc yaml.Node
	if strings.TrimSpace(front) != "" {
		if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
			return "", fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return "", fmt.Errorf("failed to parse frontmatter: top level is not a mapping")
	}

	totals := readTotals(content, lines)
	totals.Edits += add.Edits
	totals.Words += add.Words
	totals.EditTime += add.EditTime
	totals.ReadTime += add.ReadTime
	totals.TotalTime += add.TotalTime
	for _, line := range lines {
		f := totalFields[line.field]
		if f.count != nil {
			set(root, line.key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(*f.count(&totals))})
			continue
		}
		set(root, line.key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: timer.FormatDuration(*f.duration(&totals), seconds)})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	return frontmatterFence + "\n" + buf.String() + frontmatterFence + "\n" + body, nil
}

// readTotals reads the totals the template names from the frontmatter.
func readTotals(content string, lines []metadataLine) Totals {
	var t Totals
	front, _, ok := splitFrontmatter(content)
	if !ok {
		return t
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(front), &doc); err != nil || len(doc.Content) == 0 {
		return t
	}
	for _, line := range lines {
		value := lookup(doc.Content[0], line.key)
		if value == nil {
			continue
		}
		f := totalFields[line.field]
		if f.count != nil {
			*f.count(&t), _ = strconv.Atoi(strings.TrimSpace(value.Value))
		} else {
			*f.duration(&t), _ = timer.ParseDuration(value.Value)
		}
	}
	return t
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func set(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}
