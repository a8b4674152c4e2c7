package vault

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kimhsiao/notecore/internal/models"
)

var (
	delimiter     = []byte("---\n")
	closingMarker = []byte("\n---\n")
)

// MarshalNote renders a note as markdown with a YAML frontmatter block
// holding every field but the content.
func MarshalNote(n *models.Note) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(delimiter)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}

	buf.Write(delimiter)
	buf.WriteString(n.Content)
	return buf.Bytes(), nil
}

// UnmarshalNote parses a markdown file. A file without frontmatter is a note
// whose content is the whole file; missing fields are left zero.
func UnmarshalNote(data []byte) (*models.Note, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	n := &models.Note{}

	if !bytes.HasPrefix(data, delimiter) {
		n.Content = string(data)
		return n, nil
	}

	rest := data[len(delimiter):]
	var front, body []byte
	switch {
	case bytes.HasPrefix(rest, delimiter):
		body = rest[len(delimiter):]
	default:
		idx := bytes.Index(rest, closingMarker)
		if idx < 0 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return nil, errors.New("frontmatter started but no closing delimiter found")
			}
			front = rest[:len(rest)-len("---")]
		} else {
			front = rest[:idx+1]
			body = rest[idx+len(closingMarker):]
		}
	}

	if err := yaml.Unmarshal(front, n); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	n.Content = string(body)
	return n, nil
}

// MarshalCategory renders a category as a YAML document.
func MarshalCategory(c *models.Category) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode category: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode category: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalCategory parses a category YAML document.
func UnmarshalCategory(data []byte) (*models.Category, error) {
	c := &models.Category{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("invalid category yaml: %w", err)
	}
	return c, nil
}
