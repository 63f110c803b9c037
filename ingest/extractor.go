package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Extractor converts raw document content to plain text ready for chunking.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ContentType identifies the format of submitted document content.
type ContentType string

const (
	TypePlainText ContentType = "text/plain"
	TypeMarkdown  ContentType = "text/markdown"
	TypeHTML      ContentType = "text/html"
	TypePDF       ContentType = "application/pdf"
)

// ContentTypeFromExtension maps file extensions to content types.
func ContentTypeFromExtension(ext string) ContentType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return TypeMarkdown
	case "html", "htm":
		return TypeHTML
	case "pdf":
		return TypePDF
	default:
		return TypePlainText
	}
}

// ExtractorFor returns the extractor for a content type. Unknown types fall
// back to plain text.
func ExtractorFor(ct ContentType) Extractor {
	switch ct {
	case TypeMarkdown:
		return MarkdownExtractor{}
	case TypeHTML:
		return HTMLExtractor{}
	case TypePDF:
		return NewPDFExtractor()
	default:
		return PlainTextExtractor{}
	}
}

// PlainTextExtractor returns content as-is.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// MarkdownExtractor strips markdown structure, keeping text with paragraph
// boundaries so downstream chunking still splits on blank lines.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(content []byte) (string, error) {
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(content))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch t := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(t.Segment.Value(content))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(content))
				}
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// HTMLExtractor pulls readable article text out of an HTML page, dropping
// navigation, scripts, and boilerplate.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(content []byte) (string, error) {
	u := &url.URL{Scheme: "https", Host: "localhost"}
	article, err := readability.FromReader(bytes.NewReader(content), u)
	if err != nil {
		return "", fmt.Errorf("extract html: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}
