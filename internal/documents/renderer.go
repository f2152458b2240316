package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/web"
)

// Subdir is the media subdirectory holding quotation documents.
const Subdir = "quotations"

const title = "Professional Quotation Details"

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Config locates generated documents on disk and on the web.
type Config struct {
	MediaRoot string
	MediaURL  string
}

// Document is a generated quotation file.
type Document struct {
	Name string
	Path string
	URL  string
}

// Renderer turns quotations into PDF files via html/template and Gotenberg.
type Renderer struct {
	tpl     *template.Template
	client  PDFClient
	dir     string
	baseURL string
	now     func() time.Time
}

type pdfData struct {
	Title       string
	Quotation   *quotations.Quotation
	GeneratedAt time.Time
}

// NewRenderer parses the quotation PDF template and wires the PDF client.
func NewRenderer(client PDFClient, cfg Config) (*Renderer, error) {
	if client == nil {
		return nil, fmt.Errorf("documents renderer: pdf client required")
	}
	if strings.TrimSpace(cfg.MediaRoot) == "" {
		return nil, fmt.Errorf("documents renderer: media root required")
	}
	funcMap := template.FuncMap{
		"money": func(v decimal.Decimal) string {
			return v.StringFixed(2)
		},
		"formatDate": func(t time.Time) string {
			return t.Format("02 Jan 2006 15:04")
		},
	}
	tpl, err := template.New("quotation_pdf.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/quotation_pdf.html")
	if err != nil {
		return nil, err
	}
	baseURL := cfg.MediaURL
	if baseURL == "" {
		baseURL = "/media/"
	}
	return &Renderer{
		tpl:     tpl,
		client:  client,
		dir:     filepath.Join(cfg.MediaRoot, Subdir),
		baseURL: baseURL,
		now:     time.Now,
	}, nil
}

// WithClock replaces the clock used for file names.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	r.now = now
	return r
}

// FileName returns the document name for a quotation generated at t.
func FileName(id int64, t time.Time) string {
	return fmt.Sprintf("quotation_%d_%s.pdf", id, t.Format("20060102150405"))
}

// HTML executes the quotation template.
func (r *Renderer) HTML(q *quotations.Quotation, at time.Time) (string, error) {
	if r == nil || r.tpl == nil {
		return "", fmt.Errorf("documents renderer not initialised")
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, pdfData{Title: title, Quotation: q, GeneratedAt: at}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render produces a new PDF for q and writes it under the media root. Every
// call writes a new file named after the current second.
func (r *Renderer) Render(ctx context.Context, q *quotations.Quotation) (Document, error) {
	if q == nil || q.ID <= 0 {
		return Document{}, fmt.Errorf("documents: quotation must be persisted before rendering")
	}
	at := r.now()
	html, err := r.HTML(q, at)
	if err != nil {
		return Document{}, fmt.Errorf("render quotation %d template: %w", q.ID, err)
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return Document{}, fmt.Errorf("render quotation %d pdf: %w", q.ID, err)
	}
	doc := r.Locate(FileName(q.ID, at))
	if err := writeFile(r.dir, doc.Path, pdf); err != nil {
		return Document{}, fmt.Errorf("write quotation %d document: %w", q.ID, err)
	}
	return doc, nil
}

// Locate resolves a stored document name to its path and URL.
func (r *Renderer) Locate(name string) Document {
	name = filepath.Base(name)
	return Document{
		Name: name,
		Path: filepath.Join(r.dir, name),
		URL:  strings.TrimRight(r.baseURL, "/") + "/" + path.Join(Subdir, name),
	}
}

// Exists reports whether the document file is present on disk.
func (r *Renderer) Exists(doc Document) bool {
	if doc.Name == "" || doc.Name == "." {
		return false
	}
	info, err := os.Stat(doc.Path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

func writeFile(dir, target string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".quotation-*.tmp")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr, os.Chmod(tmp.Name(), 0o644)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
