// Package export lays out a generated picture and its story as a PDF.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/markup"
)

// Download metadata for the exported document.
const (
	FileName = "story.pdf"
	MimeType = "application/pdf"
)

// DefaultTitle is printed on the first line of every export.
const DefaultTitle = "AI Story Generator"

// Page geometry in millimetres (A4 portrait).
const (
	pageWidth   = 210.0
	pageHeight  = 297.0
	margin      = 15.0
	lineHeight  = 6.0
	columnWidth = pageWidth - 2*margin

	titleFontSize = 18.0
	topicFontSize = 12.0
	bodyFontSize  = 11.0

	imageBox = 90.0 // image is fitted into a square box of this size

	// LinesPerPage is the number of whole line slots between the top and bottom
	// margins: floor((297 - 2*15) / 6).
	LinesPerPage = 44

	titleSlots = 2
	topicSlots = 1
	gapSlots   = 1
	// imageSlots covers the 90mm image box (15 slots) plus one blank slot below it.
	imageSlots = 16
)

// Document is the input of one export.
type Document struct {
	Title string      // defaults to DefaultTitle
	Topic string
	Image image.Image // optional
	Story string      // finalized story text; markdown is stripped
}

// Layout is the deterministic geometry of a document.
type Layout struct {
	Lines       []string // wrapped story lines
	HeaderSlots int      // line slots taken by title, topic and image on page 1
	Pages       int
}

// Exporter renders documents to PDF bytes.
type Exporter struct {
	fontPath string // optional UTF-8 TTF; core Helvetica otherwise
	tempDir  string // where the image is staged; os.TempDir() when empty
}

// NewExporter creates an exporter. fontPath may be empty.
func NewExporter(fontPath string) *Exporter {
	return &Exporter{fontPath: fontPath}
}

// Export renders doc and returns the serialized PDF.
func (e *Exporter) Export(doc Document) ([]byte, error) {
	pdf, layout, err := e.render(doc)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize PDF: %w", err)
	}

	log.Debug().
		Int("pages", layout.Pages).
		Int("lines", len(layout.Lines)).
		Bool("image", doc.Image != nil).
		Int("size", buf.Len()).
		Msg("PDF exported")

	return buf.Bytes(), nil
}

// Layout wraps the story and computes the page count without drawing.
func (e *Exporter) Layout(doc Document) (Layout, error) {
	pdf, family, tr, err := e.newPDF()
	if err != nil {
		return Layout{}, err
	}
	pdf.SetFont(family, "", bodyFontSize)
	return computeLayout(doc, measureWith(pdf, tr)), nil
}

func (e *Exporter) render(doc Document) (*fpdf.Fpdf, Layout, error) {
	pdf, family, tr, err := e.newPDF()
	if err != nil {
		return nil, Layout{}, err
	}

	pdf.SetFont(family, "", bodyFontSize)
	layout := computeLayout(doc, measureWith(pdf, tr))

	title := doc.Title
	if title == "" {
		title = DefaultTitle
	}

	pdf.AddPage()
	pdf.SetFont(family, "B", titleFontSize)
	pdf.SetXY(margin, margin)
	pdf.CellFormat(columnWidth, titleSlots*lineHeight, tr(title), "", 0, "L", false, 0, "")

	pdf.SetFont(family, "", topicFontSize)
	pdf.SetXY(margin, margin+titleSlots*lineHeight)
	pdf.CellFormat(columnWidth, topicSlots*lineHeight, tr("Topic: "+doc.Topic), "", 0, "L", false, 0, "")

	if doc.Image != nil {
		if err := e.drawImage(pdf, doc.Image, margin, margin+(titleSlots+topicSlots+gapSlots)*lineHeight); err != nil {
			return nil, Layout{}, err
		}
	}

	pdf.SetFont(family, "", bodyFontSize)
	for i, line := range layout.Lines {
		slot := layout.HeaderSlots + i
		if slot > 0 && slot%LinesPerPage == 0 {
			pdf.AddPage()
			pdf.SetFont(family, "", bodyFontSize)
		}
		pdf.SetXY(margin, margin+float64(slot%LinesPerPage)*lineHeight)
		pdf.CellFormat(columnWidth, lineHeight, tr(line), "", 0, "L", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, Layout{}, fmt.Errorf("failed to render PDF: %w", err)
	}
	return pdf, layout, nil
}

// newPDF returns a document with automatic page breaks off, the font family to use
// and the string translator for that font.
func (e *Exporter) newPDF() (*fpdf.Fpdf, string, func(string) string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)

	if e.fontPath == "" {
		return pdf, "Helvetica", pdf.UnicodeTranslatorFromDescriptor(""), nil
	}

	pdf.AddUTF8Font("story", "", e.fontPath)
	pdf.AddUTF8Font("story", "B", e.fontPath)
	if err := pdf.Error(); err != nil {
		return nil, "", nil, fmt.Errorf("failed to load font %s: %w", e.fontPath, err)
	}
	return pdf, "story", func(s string) string { return s }, nil
}

// drawImage stages img as a temporary PNG, places it and removes the file on every path.
func (e *Exporter) drawImage(pdf *fpdf.Fpdf, img image.Image, x, y float64) (err error) {
	f, err := os.CreateTemp(e.tempDir, "story-image-*.png")
	if err != nil {
		return fmt.Errorf("failed to create temp image: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", f.Name()).Msg("Failed to remove temp image")
		}
	}()

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write temp image: %w", err)
	}

	w, h := fitBox(img.Bounds(), imageBox)
	pdf.ImageOptions(f.Name(), x, y, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to embed image: %w", err)
	}
	return nil
}

// fitBox scales bounds to fit a square box, keeping the aspect ratio.
func fitBox(b image.Rectangle, box float64) (float64, float64) {
	w, h := float64(b.Dx()), float64(b.Dy())
	if w <= 0 || h <= 0 {
		return box, box
	}
	if w >= h {
		return box, box * h / w
	}
	return box * w / h, box
}

func measureWith(pdf *fpdf.Fpdf, tr func(string) string) func(string) float64 {
	return func(s string) float64 { return pdf.GetStringWidth(tr(s)) }
}

func computeLayout(doc Document, measure func(string) float64) Layout {
	header := titleSlots + topicSlots + gapSlots
	if doc.Image != nil {
		header += imageSlots
	}
	lines := wrapText(markup.PlainText(doc.Story), columnWidth, measure)
	return Layout{
		Lines:       lines,
		HeaderSlots: header,
		Pages:       pageCount(header, len(lines)),
	}
}

// pageCount is ceil((header+lines)/LinesPerPage), at least 1.
func pageCount(headerSlots, lines int) int {
	total := headerSlots + lines
	pages := (total + LinesPerPage - 1) / LinesPerPage
	if pages < 1 {
		return 1
	}
	return pages
}

// wrapText greedily wraps each paragraph line to width. Words wider than the column
// are broken between runes. Empty input lines are kept as blank lines.
func wrapText(text string, width float64, measure func(string) float64) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range words {
			for measure(word) > width {
				head, tail := splitWord(word, width, measure)
				if line != "" {
					out = append(out, line)
					line = ""
				}
				out = append(out, head)
				word = tail
			}
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if measure(candidate) <= width {
				line = candidate
				continue
			}
			out = append(out, line)
			line = word
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// splitWord returns the longest rune prefix of word that fits width (at least one rune) and the rest.
func splitWord(word string, width float64, measure func(string) float64) (string, string) {
	cut := 0
	for i := range word {
		if i > 0 && measure(word[:i]) > width {
			break
		}
		cut = i
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(word)
		cut = size
	}
	return word[:cut], word[cut:]
}
