package generator

import (
	"errors"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PostProcess turns raw model output into post copy: markdown is flattened to
// plain text and surrounding whitespace and quotes are dropped.
func PostProcess(raw string) (string, error) {
	out := strings.TrimSpace(PlainText(raw))
	out = strings.Trim(out, "\"")
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("model returned empty content")
	}
	return out, nil
}

// PlainText renders markdown source as plain text. Emphasis, links and
// headings keep their text; paragraphs are separated by a blank line.
// Hashtags survive because goldmark only treats "# " at line start as a
// heading.
func PlainText(src string) string {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(source))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(source))
				}
			}
		case *ast.ListItem:
			if !entering {
				b.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.Blockquote:
			if !entering && n.NextSibling() != nil {
				if _, inList := n.Parent().(*ast.ListItem); !inList {
					b.WriteString("\n\n")
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
