// Package pdfgen renders the text of an HTML page into a simple PDF document.
// It backs the text fallback written when a page holds no downloadable PDF.
package pdfgen

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/extract"
)

// BlockKind tells the writer how to lay out a block
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockCode
)

// Block is one laid-out unit of the fallback document
type Block struct {
	Kind  BlockKind
	Level int // Heading level 1-6, 0 otherwise
	Text  string
}

// Render turns an HTML page into fallback PDF bytes using the given layout format.
// format is config.FallbackFormatText or config.FallbackFormatMarkdown; empty means text.
func Render(page, title, format string) ([]byte, error) {
	var blocks []Block
	switch format {
	case config.FallbackFormatMarkdown:
		var err error
		blocks, err = MarkdownBlocks(page)
		if err != nil {
			return nil, err
		}
	case config.FallbackFormatText, "":
		blocks = TextBlocks(extract.VisibleText(page))
	default:
		return nil, fmt.Errorf("unknown fallback format %q", format)
	}

	var buf bytes.Buffer
	if err := Write(&buf, title, blocks); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TextBlocks turns newline-separated text into one paragraph per non-blank line
func TextBlocks(text string) []Block {
	var blocks []Block
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, Block{Kind: BlockParagraph, Text: line})
	}
	return blocks
}

// Write lays blocks out on A4 pages with the core Helvetica and Courier fonts
func Write(w io.Writer, title string, blocks []Block) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(15, 15, 15)
	doc.SetAutoPageBreak(true, 15)
	doc.SetCreator("paper-scraper", false)
	if title != "" {
		doc.SetTitle(title, true)
	}
	doc.AddPage()

	if title != "" {
		doc.SetFont("Helvetica", "B", 15)
		doc.MultiCell(0, 7, winAnsi(title), "", "L", false)
		doc.Ln(4)
	}

	for _, b := range blocks {
		text := winAnsi(b.Text)
		switch b.Kind {
		case BlockHeading:
			size := 15.0 - float64(b.Level)
			if size < 10 {
				size = 10
			}
			doc.Ln(2)
			doc.SetFont("Helvetica", "B", size)
			doc.MultiCell(0, size*0.5, text, "", "L", false)
			doc.Ln(1)
		case BlockListItem:
			doc.SetFont("Helvetica", "", 10)
			doc.SetX(20)
			doc.MultiCell(0, 5, "- "+text, "", "L", false)
		case BlockCode:
			doc.SetFont("Courier", "", 9)
			doc.MultiCell(0, 4.5, text, "", "L", false)
			doc.Ln(1)
		default:
			doc.SetFont("Helvetica", "", 10)
			doc.MultiCell(0, 5, text, "", "L", false)
			doc.Ln(1.5)
		}
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// winAnsi maps text onto the Windows-1252 bytes the core fonts expect.
// Runes outside the code page become '?'.
func winAnsi(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\t':
			b.WriteByte(' ')
			continue
		case '\n':
			b.WriteByte('\n')
			continue
		}
		if c, ok := charmap.Windows1252.EncodeRune(r); ok && c >= 0x20 {
			b.WriteByte(c)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}
