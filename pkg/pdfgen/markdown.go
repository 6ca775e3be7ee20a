package pdfgen

import (
	"bytes"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// noiseSelectors are dropped before conversion; they never carry article text
const noiseSelectors = "script, style, noscript, template, nav, header, footer, form, iframe"

// MarkdownBlocks converts page to markdown and walks the result into layout blocks,
// keeping headings, list items and code apart from body paragraphs
func MarkdownBlocks(page string) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err)
	}
	doc.Find(noiseSelectors).Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	cleaned, err := goquery.OuterHtml(body)
	if err != nil {
		return nil, fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: markdown conversion: %w", utils.ErrParsing, err)
	}
	return markdownToBlocks([]byte(markdown)), nil
}

func markdownToBlocks(source []byte) []Block {
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []Block
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if t := inlineText(node, source); t != "" {
				blocks = append(blocks, Block{Kind: BlockHeading, Level: node.Level, Text: t})
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			t := inlineText(node, source)
			if t == "" {
				return ast.WalkSkipChildren, nil
			}
			kind := BlockParagraph
			if _, inList := node.Parent().(*ast.ListItem); inList {
				kind = BlockListItem
			}
			blocks = append(blocks, Block{Kind: kind, Text: t})
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if t := blockLines(node, source); t != "" {
				blocks = append(blocks, Block{Kind: BlockCode, Text: t})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

// inlineText concatenates the text under n, turning line breaks into spaces
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch child := c.(type) {
			case *ast.Text:
				buf.Write(util.ResolveEntityNames(util.UnescapePunctuations(child.Segment.Value(source))))
				if child.SoftLineBreak() || child.HardLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(child.Value)
			default:
				walk(child)
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func blockLines(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}
