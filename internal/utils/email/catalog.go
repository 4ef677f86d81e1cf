package email

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"os"
	"strings"
	texttemplate "text/template"

	"github.com/beevik/etree"
)

//go:embed templates.xml
var defaultCatalog []byte

// ErrTemplateNotFound is returned for an unknown template name
var ErrTemplateNotFound = errors.New("email template not found")

type template struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Catalog holds parsed email templates keyed by name
type Catalog struct {
	templates map[string]template
}

// LoadCatalog parses the XML catalog at path, or the built-in catalog when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read email templates: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses a <templates> document of <template name=".."> elements,
// each with a <subject> and a <body>.
func ParseCatalog(data []byte) (*Catalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %v", err)
	}

	root := doc.SelectElement("templates")
	if root == nil {
		return nil, fmt.Errorf("templates element not found in XML")
	}

	c := &Catalog{templates: make(map[string]template)}
	for _, el := range root.SelectElements("template") {
		name := el.SelectAttrValue("name", "")
		if name == "" {
			return nil, fmt.Errorf("template without name attribute")
		}
		subjectEl := el.SelectElement("subject")
		bodyEl := el.SelectElement("body")
		if subjectEl == nil || bodyEl == nil {
			return nil, fmt.Errorf("template %s: subject and body are required", name)
		}

		subject, err := texttemplate.New(name + ".subject").Option("missingkey=zero").Parse(strings.TrimSpace(subjectEl.Text()))
		if err != nil {
			return nil, fmt.Errorf("template %s: failed to parse subject: %w", name, err)
		}
		body, err := htmltemplate.New(name + ".body").Option("missingkey=zero").Parse(strings.TrimSpace(bodyEl.Text()))
		if err != nil {
			return nil, fmt.Errorf("template %s: failed to parse body: %w", name, err)
		}
		c.templates[name] = template{subject: subject, body: body}
	}
	return c, nil
}

// Render returns the subject and HTML body of the named template
func (c *Catalog) Render(name string, props map[string]string) (string, string, error) {
	t, ok := c.templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, props); err != nil {
		return "", "", fmt.Errorf("failed to render subject of %s: %w", name, err)
	}
	if err := t.body.Execute(&body, props); err != nil {
		return "", "", fmt.Errorf("failed to render body of %s: %w", name, err)
	}
	return subject.String(), body.String(), nil
}
