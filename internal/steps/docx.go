package steps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
)

// Screenshots are scaled to the printable width of an A4 page.
const (
	figureWidth  = 6.0
	figureHeight = figureWidth * viewportHeight / viewportWidth
)

type blockKind int

const (
	blockTitle blockKind = iota
	blockHeading
	blockText
	blockFigure
	blockPageBreak
)

type block struct {
	kind blockKind
	text string
	// src is the absolute image path of a figure, ref its workspace path.
	src, ref string
}

// document is a rendering-neutral list of blocks written as .docx, or as
// plain text when the .docx writer fails.
type document struct {
	blocks []block
}

func (d *document) title(s string)   { d.blocks = append(d.blocks, block{kind: blockTitle, text: s}) }
func (d *document) heading(s string) { d.blocks = append(d.blocks, block{kind: blockHeading, text: s}) }
func (d *document) pageBreak()       { d.blocks = append(d.blocks, block{kind: blockPageBreak}) }

func (d *document) textf(format string, args ...any) {
	d.blocks = append(d.blocks, block{kind: blockText, text: fmt.Sprintf(format, args...)})
}

func (d *document) figure(caption, src, ref string) {
	d.blocks = append(d.blocks, block{kind: blockFigure, text: caption, src: src, ref: ref})
}

// Text renders the document as UTF-8 text.
func (d *document) Text() string {
	var b strings.Builder
	for i, bl := range d.blocks {
		switch bl.kind {
		case blockHeading:
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(bl.text + "\n")
		case blockFigure:
			fmt.Fprintf(&b, "%s：%s\n", bl.text, bl.ref)
		case blockPageBreak:
			b.WriteString("\n")
		default:
			b.WriteString(bl.text + "\n")
		}
	}
	return b.String()
}

// saveDocx writes the document to dest as an Office Open XML file.
func (d *document) saveDocx(dest string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	for _, bl := range d.blocks {
		switch bl.kind {
		case blockTitle:
			if _, err := doc.AddHeading(bl.text, 0); err != nil {
				return fmt.Errorf("failed to add title: %w", err)
			}
		case blockHeading:
			if _, err := doc.AddHeading(bl.text, 1); err != nil {
				return fmt.Errorf("failed to add heading %q: %w", bl.text, err)
			}
		case blockFigure:
			if _, err := doc.AddPicture(bl.src, units.Inch(figureWidth), units.Inch(figureHeight)); err != nil {
				return fmt.Errorf("failed to embed %s: %w", bl.ref, err)
			}
			doc.AddParagraph(bl.text)
		case blockPageBreak:
			doc.AddPageBreak()
		default:
			doc.AddParagraph(bl.text)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := doc.SaveTo(dest); err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(dest), err)
	}
	return nil
}
