package pubmed

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// CSVHeader is the column layout written by WriteCSV
var CSVHeader = []string{"PMID", "Title", "Authors", "Journal", "PubDate", "DOI", "Abstract", "CitedBy", "PMCID", "MatchedKeyword"}

// HarvestOptions tunes a Harvester
type HarvestOptions struct {
	Keywords       []string
	StartYear      int
	BatchSize      int
	BatchPause     time.Duration
	FetchCitations bool
	FetchPMC       bool
}

// HarvestOptionsFromConfig extracts harvester settings from the pubmed block
func HarvestOptionsFromConfig(cfg config.PubMedConfig) HarvestOptions {
	return HarvestOptions{
		Keywords:       cfg.Keywords,
		StartYear:      cfg.StartYear,
		BatchSize:      cfg.BatchSize,
		BatchPause:     cfg.BatchPause,
		FetchCitations: cfg.FetchCitations,
		FetchPMC:       cfg.FetchPMC,
	}
}

// Harvester collects article metadata for a journal list
type Harvester struct {
	client *Client
	opts   HarvestOptions
	log    *logrus.Entry
}

// NewHarvester creates a Harvester
func NewHarvester(client *Client, opts HarvestOptions, log *logrus.Entry) *Harvester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	return &Harvester{client: client, opts: opts, log: log.WithField("component", "harvester")}
}

// Harvest searches every journal and returns all matching articles.
// Per-journal failures are logged and skipped; only cancellation stops the harvest.
// A term that fails after some batches keeps those articles and ends that journal's search.
func (h *Harvester) Harvest(ctx context.Context, journals []models.Journal) ([]Article, error) {
	var all []Article
	for i, j := range journals {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		var found []Article
		for _, term := range SearchTerms(j) {
			articles, err := h.harvestTerm(ctx, term)
			if err != nil {
				if ctx.Err() != nil {
					return append(all, articles...), ctx.Err()
				}
				termLog := h.log.WithField("term", term)
				termLog.Warnf("Search failed [%s]: %v", utils.CategorizeError(err), err)
				if len(articles) == 0 {
					continue
				}
				// The term did match; keep the batches fetched before the failure
				termLog.Warnf("Keeping %d articles fetched before the failure", len(articles))
				found = articles
				break
			}
			if len(articles) > 0 {
				h.log.WithField("term", term).Infof("Found %d articles", len(articles))
				found = articles
				break
			}
			h.log.WithField("term", term).Debug("No articles, trying next term")
		}
		if len(found) == 0 {
			h.log.Warnf("No articles found for %s / %s", j.Abbreviation, j.ISSN)
		}
		all = append(all, found...)

		if i < len(journals)-1 {
			sleepCtx(ctx, h.opts.BatchPause)
		}
	}
	return all, nil
}

// SearchTerms lists the journal terms tried in order: the abbreviation, then each
// ISSN as given, then its dashed form when it is eight characters without one.
func SearchTerms(j models.Journal) []string {
	var terms []string
	if a := strings.TrimSpace(j.Abbreviation); a != "" {
		terms = append(terms, a)
	}
	for _, issn := range strings.Split(strings.ReplaceAll(j.ISSN, " ", ""), ",") {
		if issn == "" {
			continue
		}
		terms = append(terms, issn)
		if len(issn) == 8 {
			terms = append(terms, issn[:4]+"-"+issn[4:])
		}
	}
	return terms
}

func (h *Harvester) harvestTerm(ctx context.Context, term string) ([]Article, error) {
	query := BuildQuery(term, h.opts.Keywords, h.opts.StartYear)
	handle, err := h.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if handle.Count == 0 {
		return nil, nil
	}

	var articles []Article
	for start := 0; start < handle.Count; start += h.opts.BatchSize {
		text, err := h.client.FetchMedline(ctx, handle, start, h.opts.BatchSize)
		if err != nil {
			return articles, err
		}
		batch := ParseMedline(text)
		for k := range batch {
			batch[k].MatchedKeyword = MatchKeyword(batch[k], h.opts.Keywords)
			h.enrich(ctx, &batch[k])
		}
		articles = append(articles, batch...)

		if start+h.opts.BatchSize < handle.Count {
			sleepCtx(ctx, h.opts.BatchPause)
		}
	}
	return articles, nil
}

// MatchKeyword returns the first keyword found in the title or abstract, ignoring case.
// It is empty when PubMed matched on a field that is not harvested.
func MatchKeyword(a Article, keywords []string) string {
	text := strings.ToLower(a.Title + "\n" + a.Abstract)
	for _, kw := range keywords {
		if k := strings.ToLower(strings.TrimSpace(kw)); k != "" && strings.Contains(text, k) {
			return kw
		}
	}
	return ""
}

// enrich adds citation counts and PMC ids; lookup failures leave the zero value
func (h *Harvester) enrich(ctx context.Context, a *Article) {
	if a.PMID == "" {
		return
	}
	if h.opts.FetchCitations {
		n, err := h.client.CitedByCount(ctx, a.PMID)
		if err != nil {
			h.log.WithField("pmid", a.PMID).Debugf("Cited-by lookup failed: %v", err)
		}
		a.CitedBy = n
	}
	if h.opts.FetchPMC {
		id, err := h.client.PMCID(ctx, a.PMID)
		if err != nil {
			h.log.WithField("pmid", a.PMID).Debugf("PMC lookup failed: %v", err)
		}
		a.PMCID = id
	}
}

// WriteCSV writes articles with CSVHeader to path, atomically
func WriteCSV(path string, articles []Article) error {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("%w: csv header: %w", utils.ErrPersistence, err)
	}
	for _, a := range articles {
		row := []string{
			a.PMID, a.Title, strings.Join(a.Authors, "; "), a.Journal, a.PubDate,
			a.DOI, a.Abstract, strconv.Itoa(a.CitedBy), a.PMCID, a.MatchedKeyword,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: csv row %s: %w", utils.ErrPersistence, a.PMID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: csv flush: %w", utils.ErrPersistence, err)
	}
	return utils.WriteFileAtomic(path, []byte(b.String()))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
