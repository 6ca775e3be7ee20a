package download

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"

	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/pdfgen"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// saveDocument writes PDF bytes as {SafeName}.pdf.
// Returns errIdentifierDone on success or on a write failure; a file that fails verification
// is removed and the caller moves on.
func (o *Orchestrator) saveDocument(a *attempt, source string, doc models.FetchOutcome) error {
	filename := a.safe + ".pdf"
	path := filepath.Join(o.opts.OutputDir, filename)

	if err := utils.WriteFileAtomic(path, doc.Body); err != nil {
		a.log.Errorf("Could not save %s: %v", filename, err)
		return o.persistFailed(a, err)
	}

	if o.opts.VerifyPDF {
		if err := verifyPDF(path); err != nil {
			a.log.Warnf("Discarding unreadable PDF from %s: %v", doc.URL, err)
			os.Remove(path)
			return err
		}
	}

	return o.succeeded(a, models.StatusDownloaded, filename, source, doc.URL, utils.CalculateBytesSHA256(doc.Body))
}

// saveFallback renders the page text as {SafeName}_htmlfallback.pdf
func (o *Orchestrator) saveFallback(a *attempt, source string, page models.FetchOutcome) error {
	filename := a.safe + "_htmlfallback.pdf"
	path := filepath.Join(o.opts.OutputDir, filename)

	data, err := pdfgen.Render(page.Text, a.id, o.opts.FallbackFormat)
	if err != nil {
		a.log.Warnf("Could not render text fallback: %v", err)
		return err
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		a.log.Errorf("Could not save %s: %v", filename, err)
		return o.persistFailed(a, err)
	}
	return o.succeeded(a, models.StatusTextFallbackSaved, filename, source, page.URL, utils.CalculateBytesSHA256(data))
}

// saveDebugHTML keeps a page that yielded no candidates; failures only log
func (o *Orchestrator) saveDebugHTML(a *attempt, page string) {
	path := filepath.Join(o.opts.OutputDir, a.safe+"_debug.html")
	if err := utils.WriteFileAtomic(path, []byte(page)); err != nil {
		a.log.Warnf("Could not save debug HTML: %v", err)
		return
	}
	a.log.Debugf("Saved debug HTML to %s", path)
}

// verifyPDF opens path with a PDF parser and requires at least one page
func verifyPDF(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf parser panic: %v", utils.ErrClassificationMismatch, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrClassificationMismatch, err)
	}

	if reader.NumPage() < 1 {
		return fmt.Errorf("%w: pdf has no pages", utils.ErrClassificationMismatch)
	}
	return nil
}
