package profile

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Document is a profile markdown file split into its YAML frontmatter and
// body. Meta keeps every frontmatter key so rewrites preserve metadata the
// typed view does not model.
type Document struct {
	Meta    map[string]interface{}
	Content string
}

// ParseDocument splits a markdown document into frontmatter and body. A
// frontmatter block is only recognized when the document opens with a "---"
// line; anything else parses as pure body.
func ParseDocument(raw []byte) (*Document, error) {
	content := string(raw)
	doc := &Document{Meta: map[string]interface{}{}, Content: content}

	if !strings.HasPrefix(content, delimiter+"\n") {
		return doc, nil
	}

	rest := content[len(delimiter)+1:]
	var metaBlock, body string
	if idx := strings.Index(rest, "\n"+delimiter+"\n"); idx >= 0 {
		metaBlock = rest[:idx+1]
		body = strings.TrimPrefix(rest[idx+len(delimiter)+2:], "\n")
	} else if strings.HasSuffix(rest, "\n"+delimiter) {
		metaBlock = rest[:len(rest)-len(delimiter)]
	} else {
		return doc, nil
	}

	meta := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(metaBlock), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse profile frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	doc.Meta = meta
	doc.Content = body
	return doc, nil
}

// LoadDocument reads and parses a profile document from disk.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile document %s: %w", path, err)
	}
	return ParseDocument(raw)
}

// Encode renders the document back to markdown, frontmatter block first.
// Documents with no metadata render as the bare body.
func (d *Document) Encode() ([]byte, error) {
	if len(d.Meta) == 0 {
		return []byte(d.Content), nil
	}
	meta, err := yaml.Marshal(d.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(meta)
	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(d.Content)
	return buf.Bytes(), nil
}

// Provider returns the provider recorded in the frontmatter, or "" when the
// key is absent or not a string.
func (d *Document) Provider() string {
	s, _ := d.Meta["provider"].(string)
	return s
}

// Profile decodes the frontmatter into its typed form. fallbackName fills
// the profile name when the document does not declare one, conventionally
// the file stem.
func (d *Document) Profile(fallbackName string) (*AgentProfile, error) {
	raw, err := yaml.Marshal(d.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile frontmatter: %w", err)
	}
	var p AgentProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode agent profile %s: %w", fallbackName, err)
	}
	if p.Name == "" {
		p.Name = fallbackName
	}
	return &p, nil
}
