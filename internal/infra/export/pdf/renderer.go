package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
	"github.com/bryanwahyu/scribe-notes/internal/infra/imaging"
)

// Page geometry in millimetres on A4 portrait.
const (
	pageHeight   = 297.0
	marginLeft   = 20.0
	marginTop    = 20.0
	marginBottom = 15.0
	imageBox     = 80.0
	textWidth    = 170.0
	lineHeight   = 5.0

	headingSize = 14.0
	notesSize   = 12.0

	truncatedMarker = "[truncated]"
)

// Options tunes the document produced by Renderer.
type Options struct {
	// MaxImagePixels bounds the longest side of embedded images; zero keeps originals.
	MaxImagePixels int
	// Optimize runs the document through pdfcpu before it is written out.
	Optimize bool
	Title    string
}

// Renderer lays out one page per record: the image, a heading and the wrapped notes.
type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	if opts.Title == "" {
		opts.Title = "Image Notes AI"
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) Render(ctx context.Context, records []*domain.Record, w io.Writer) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle(r.opts.Title, true)
	doc.SetCreator("scribe-notes", true)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc.AddPage()
		y := marginTop

		if err := r.drawImage(doc, rec); err != nil {
			slog.Warn("export: image not embedded", "record_id", rec.ID, "error", err)
			doc.SetFont("Helvetica", "I", notesSize)
			doc.Text(marginLeft, y+imageBox/2, "[image unavailable]")
		}
		y += imageBox + 10

		doc.SetFont("Helvetica", "", headingSize)
		doc.Text(marginLeft, y, "Generated Notes:")
		y += 10

		doc.SetFont("Helvetica", "", notesSize)
		lines := wrap(doc, tr(rec.Notes))
		for i, line := range lines {
			if y > pageHeight-marginBottom-lineHeight && i < len(lines)-1 {
				doc.Text(marginLeft, y, truncatedMarker)
				break
			}
			doc.Text(marginLeft, y, line)
			y += lineHeight
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}

	if !r.opts.Optimize {
		_, err := w.Write(buf.Bytes())
		return err
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Optimize(bytes.NewReader(buf.Bytes()), w, conf); err != nil {
		return fmt.Errorf("failed to optimize pdf: %w", err)
	}
	return nil
}

func (r *Renderer) drawImage(doc *fpdf.Fpdf, rec *domain.Record) error {
	_, data, err := imaging.DecodeDataURL(rec.Image)
	if err != nil {
		return err
	}
	jpg, pw, ph, err := imaging.ToJPEG(data, r.opts.MaxImagePixels)
	if err != nil {
		return err
	}

	opt := fpdf.ImageOptions{ImageType: "JPG"}
	name := "img-" + string(rec.ID)
	doc.RegisterImageOptionsReader(name, opt, bytes.NewReader(jpg))
	if err := doc.Error(); err != nil {
		return err
	}

	w, h := imageBox, imageBox
	if pw > ph {
		h = imageBox * float64(ph) / float64(pw)
	} else if ph > pw {
		w = imageBox * float64(pw) / float64(ph)
	}
	doc.ImageOptions(name, marginLeft, marginTop, w, h, false, opt, 0, "")
	return doc.Error()
}

// wrap splits notes into lines no wider than textWidth with the current font.
func wrap(doc *fpdf.Fpdf, text string) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		if strings.TrimSpace(para) == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, doc.SplitText(para, textWidth)...)
	}
	return lines
}
