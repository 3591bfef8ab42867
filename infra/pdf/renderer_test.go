package pdf

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/kilianp07/ndf/core/dsf"
	"github.com/kilianp07/ndf/core/model"
)

type memFiles map[string][]byte

func (m memFiles) Open(_ context.Context, p string) (io.ReadCloser, error) {
	b, ok := m[p]
	if !ok {
		return nil, model.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

func twoPagePDF(t *testing.T) []byte {
	t.Helper()
	p := fpdf.New("P", "mm", "A4", "")
	p.SetFont("Helvetica", "", 12)
	for i := 0; i < 2; i++ {
		p.AddPage()
		p.Cell(40, 10, "receipt page")
	}
	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	return buf.Bytes()
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.NRGBA{R: 255, A: 128})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func bundle(atts ...model.Attachment) dsf.Bundle {
	decided := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	return dsf.Bundle{
		Sheet: model.ExpenseSheet{
			ID: "s1", Status: model.StatusApproved, Total: 62.5, Description: "Salon à Lyon",
			CreatedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), DecidedAt: &decided,
			Costs: []model.SheetCost{
				{ID: "c1", FormCostID: "km", Type: model.CostKm, Date: model.MustDate("2024-04-30"), Distance: 95,
					RateValue: 0.5, Total: 47.5, Steps: []model.Step{{From: "Grenoble", To: "Lyon", DistanceKm: 95}}, Attachments: atts},
				{ID: "c2", FormCostID: "meal", Type: model.CostFixed, Date: model.MustDate("2024-04-30"), Quantity: 1, RateValue: 15, Total: 15},
			},
		},
		Employee:   model.User{FirstName: "Zoé", LastName: "Durand", Email: "zoe@example.org"},
		Department: model.Department{Name: "Finances", Code: "DSF"},
		Form: model.Form{Name: "Déplacements", Costs: []model.FormCost{
			{ID: "km", Name: "Kilométrique"}, {ID: "meal", Name: "Repas"},
		}},
		Approver:  model.User{FirstName: "Marc", LastName: "Petit"},
		Generated: time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC),
	}
}

func TestCompileReportOnly(t *testing.T) {
	r := NewRenderer(memFiles{}, "", nopLogger{})
	doc, err := r.Compile(context.Background(), bundle())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if doc.Pages != 1 {
		t.Fatalf("expected 1 page, got %d", doc.Pages)
	}
	if !bytes.HasPrefix(doc.PDF, []byte("%PDF-")) {
		t.Fatalf("output is not a pdf")
	}
	if doc.Filename != "ndf-s1.pdf" {
		t.Fatalf("filename %s", doc.Filename)
	}
}

func TestCompileMergesAttachments(t *testing.T) {
	files := memFiles{
		"s1/a.pdf": twoPagePDF(t),
		"s1/b.png": smallPNG(t),
	}
	r := NewRenderer(files, "", nopLogger{})
	doc, err := r.Compile(context.Background(), bundle(
		model.Attachment{ID: "a", Name: "train.pdf", ContentType: "application/pdf", Path: "s1/a.pdf"},
		model.Attachment{ID: "b", Name: "ticket.png", ContentType: "image/png", Path: "s1/b.png"},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(doc.Skipped) != 0 {
		t.Fatalf("unexpected skipped attachments %v", doc.Skipped)
	}
	if doc.Pages != 4 {
		t.Fatalf("expected report + 2 pdf pages + 1 image page, got %d", doc.Pages)
	}
}

func TestCompileReplacesBrokenAttachments(t *testing.T) {
	files := memFiles{
		"s1/bad.pdf": []byte("this is not a pdf"),
		"s1/bad.jpg": []byte{0xff, 0xd8, 0xff, 0x00},
	}
	r := NewRenderer(files, "", nopLogger{})
	doc, err := r.Compile(context.Background(), bundle(
		model.Attachment{ID: "a", Name: "bad.pdf", ContentType: "application/pdf", Path: "s1/bad.pdf"},
		model.Attachment{ID: "b", Name: "bad.jpg", ContentType: "image/jpeg", Path: "s1/bad.jpg"},
		model.Attachment{ID: "c", Name: "gone.png", ContentType: "image/png", Path: "s1/missing.png"},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(doc.Skipped) != 3 {
		t.Fatalf("expected 3 skipped, got %v", doc.Skipped)
	}
	if doc.Pages != 4 {
		t.Fatalf("expected report + 3 notices, got %d", doc.Pages)
	}
}

func TestFit(t *testing.T) {
	w, h := fit(200, 100, 100, 100)
	if w != 100 || h != 50 {
		t.Fatalf("landscape fit %v %v", w, h)
	}
	w, h = fit(100, 400, 100, 100)
	if w != 25 || h != 100 {
		t.Fatalf("portrait fit %v %v", w, h)
	}
}

func TestMoney(t *testing.T) {
	if got := money(1234.5); got != "1234,50 €" {
		t.Fatalf("got %q", got)
	}
}
