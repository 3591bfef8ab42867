// Package pdf renders DSF documents with go-pdf/fpdf. Attachments are
// appended after the report: PDF pages are imported through gofpdi and
// images get one page each.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/gofpdi"

	"github.com/kilianp07/ndf/core/dsf"
	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
)

// Opener reads stored attachments.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Renderer implements dsf.Compiler.
type Renderer struct {
	files  Opener
	log    logger.Logger
	author string
}

// NewRenderer returns a Renderer reading attachments from files.
func NewRenderer(files Opener, author string, log logger.Logger) *Renderer {
	if author == "" {
		author = "ndf"
	}
	return &Renderer{files: files, log: log, author: author}
}

const (
	margin   = 15.0
	lineH    = 6.0
	maxPages = 500
)

// document carries the state of one compilation.
type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	imp *gofpdi.Importer
	// streams keeps every source alive: gofpdi keys sources by their address.
	streams []*io.ReadSeeker
	images  int
}

// Compile renders b and merges its attachments in cost order.
func (r *Renderer) Compile(ctx context.Context, b dsf.Bundle) (dsf.Document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle("Note de frais "+b.Sheet.ID, true)
	pdf.SetAuthor(r.author, true)
	pdf.SetCreator("ndf", false)
	if !b.Generated.IsZero() {
		pdf.SetCreationDate(b.Generated)
		pdf.SetModificationDate(b.Generated)
	}
	doc := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), imp: gofpdi.NewImporter()}

	doc.report(b)

	var skipped []string
	for _, c := range b.Sheet.Costs {
		for _, a := range c.Attachments {
			if err := ctx.Err(); err != nil {
				return dsf.Document{}, err
			}
			if err := r.append(ctx, doc, a); err != nil {
				r.log.Warnf("sheet %s: attachment %s (%s) replaced by notice: %v", b.Sheet.ID, a.ID, a.Name, err)
				doc.notice(a, err)
				skipped = append(skipped, a.Name)
			}
		}
	}

	if err := pdf.Error(); err != nil {
		return dsf.Document{}, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return dsf.Document{}, fmt.Errorf("write pdf: %w", err)
	}
	return dsf.Document{
		Filename: "ndf-" + b.Sheet.ID + ".pdf",
		PDF:      buf.Bytes(),
		Pages:    pdf.PageCount(),
		Skipped:  skipped,
	}, nil
}

func (r *Renderer) append(ctx context.Context, doc *document, a model.Attachment) error {
	rc, err := r.files.Open(ctx, a.Path)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}
	switch a.ContentType {
	case "application/pdf":
		return doc.importPDF(data)
	case "image/jpeg", "image/png":
		return doc.addImage(data)
	default:
		return fmt.Errorf("unsupported content type %q", a.ContentType)
	}
}

func (d *document) report(b dsf.Bundle) {
	pdf, tr := d.pdf, d.tr
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	width := pageW - 2*margin

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(width, 10, tr("Note de frais"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(width, lineH, tr("Référence : "+b.Sheet.ID), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	rows := [][2]string{
		{"Salarié", b.Employee.FullName() + " <" + b.Employee.Email + ">"},
		{"Service", b.Department.Name + " (" + b.Department.Code + ")"},
		{"Formulaire", b.Form.Name},
		{"Déposée le", b.Sheet.CreatedAt.Format("02/01/2006")},
	}
	if b.Sheet.DecidedAt != nil {
		rows = append(rows, [2]string{"Validée le", b.Sheet.DecidedAt.Format("02/01/2006") + " par " + b.Approver.FullName()})
	}
	if b.Sheet.Description != "" {
		rows = append(rows, [2]string{"Objet", b.Sheet.Description})
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, lineH, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(width-35, lineH, tr(row[1]), "", "L", false)
	}
	pdf.Ln(4)

	cols := []struct {
		title string
		w     float64
		align string
	}{
		{"Date", 22, "L"},
		{"Poste", 38, "L"},
		{"Détail", width - 22 - 38 - 28 - 24 - 26, "L"},
		{"Base", 28, "R"},
		{"Taux", 24, "R"},
		{"Montant", 26, "R"},
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range cols {
		pdf.CellFormat(c.w, 7, tr(c.title), "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, c := range b.Sheet.Costs {
		cells := []string{
			c.Date.Format("02/01/2006"),
			costName(b.Form, c.FormCostID),
			truncate(costDetail(c), 48),
			costBase(c),
			costRate(c),
			money(c.Total),
		}
		for i, col := range cols {
			pdf.CellFormat(col.w, lineH, tr(cells[i]), "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.SetFont("Helvetica", "B", 10)
	var used float64
	for _, c := range cols[:len(cols)-1] {
		used += c.w
	}
	pdf.CellFormat(used, 7, tr("Total"), "1", 0, "R", true, 0, "")
	pdf.CellFormat(cols[len(cols)-1].w, 7, tr(money(b.Sheet.Total)), "1", 1, "R", true, 0, "")

	if n := len(b.Sheet.Attachments()); n > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(width, lineH, tr(fmt.Sprintf("%d justificatif(s) joint(s) à la suite.", n)), "", 1, "L", false, 0, "")
	}
	if !b.Generated.IsZero() {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(width, lineH, tr("Généré le "+b.Generated.Format("02/01/2006 15:04")), "", 1, "L", false, 0, "")
	}
}

// importPDF appends every page of data. gofpdi panics on malformed input.
func (d *document) importPDF(data []byte) (err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), []byte("%PDF-")) {
		return fmt.Errorf("not a PDF file")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("import pdf: %v", rec)
		}
	}()
	rs := io.ReadSeeker(bytes.NewReader(data))
	d.streams = append(d.streams, &rs)

	tpl := d.imp.ImportPageFromStream(d.pdf, &rs, 1, "/MediaBox")
	sizes := d.imp.GetPageSizes()
	n := len(sizes)
	if n == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	if d.pdf.PageCount()+n > maxPages {
		return fmt.Errorf("pdf has too many pages (%d)", n)
	}
	pageW, pageH := d.pdf.GetPageSize()
	for i := 1; i <= n; i++ {
		if i > 1 {
			tpl = d.imp.ImportPageFromStream(d.pdf, &rs, i, "/MediaBox")
		}
		box := sizes[i]["/MediaBox"]
		w, h := fit(box["w"], box["h"], pageW, pageH)
		d.pdf.AddPage()
		d.imp.UseImportedTemplate(d.pdf, tpl, (pageW-w)/2, (pageH-h)/2, w, h)
	}
	return nil
}

// addImage places one image per page. Images are flattened on white and
// re-encoded as JPEG so that every PNG variant renders.
func (d *document) addImage(data []byte) error {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return fmt.Errorf("empty image")
	}
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, src, bounds.Min, draw.Over)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}

	d.images++
	name := fmt.Sprintf("att-%d", d.images)
	opts := fpdf.ImageOptions{ImageType: "JPG"}
	d.pdf.RegisterImageOptionsReader(name, opts, &buf)
	if d.pdf.Err() {
		return d.pdf.Error()
	}
	pageW, pageH := d.pdf.GetPageSize()
	w, h := fit(float64(bounds.Dx()), float64(bounds.Dy()), pageW-2*margin, pageH-2*margin)
	d.pdf.AddPage()
	d.pdf.ImageOptions(name, (pageW-w)/2, margin, w, h, false, opts, 0, "")
	return nil
}

func (d *document) notice(a model.Attachment, cause error) {
	pdf, tr := d.pdf, d.tr
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(pageW-2*margin, 10, tr("Justificatif illisible"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(pageW-2*margin, lineH, tr(fmt.Sprintf(
		"Le fichier « %s » (%s, %d octets) n'a pas pu être intégré : %v.\nL'original reste disponible dans l'application.",
		a.Name, a.ContentType, a.Size, cause)), "", "L", false)
}

// fit scales w×h to fit inside maxW×maxH keeping the aspect ratio.
func fit(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}

func costName(f model.Form, id string) string {
	if fc, ok := f.Cost(id); ok {
		return fc.Name
	}
	return id
}

func costDetail(c model.SheetCost) string {
	if len(c.Steps) > 0 {
		parts := make([]string, 0, len(c.Steps)+1)
		parts = append(parts, c.Steps[0].From)
		for _, s := range c.Steps {
			parts = append(parts, s.To)
		}
		return strings.Join(parts, " > ")
	}
	return c.Description
}

func costBase(c model.SheetCost) string {
	switch c.Type {
	case model.CostKm:
		return fmt.Sprintf("%.1f km", c.Distance)
	case model.CostPercentage:
		return money(c.Amount)
	default:
		return fmt.Sprintf("x %g", c.Quantity)
	}
}

func costRate(c model.SheetCost) string {
	switch c.Type {
	case model.CostKm:
		return fmt.Sprintf("%.3f €/km", c.RateValue)
	case model.CostPercentage:
		return fmt.Sprintf("%g %%", c.RateValue)
	default:
		return money(c.RateValue)
	}
}

func money(v float64) string {
	return strings.Replace(fmt.Sprintf("%.2f €", v), ".", ",", 1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var _ dsf.Compiler = (*Renderer)(nil)
