package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/paper-scraper/pkg/batch"
	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/load"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/sources"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// previewLen bounds the markdown preview returned by find_pdf_links
const previewLen = 600

// handleListSources handles the list_sources tool
func (s *Server) handleListSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appCfg := s.cfg.AppConfig
	list := make([]map[string]interface{}, 0, len(appCfg.Sources))
	for i, e := range appCfg.Sources {
		entry := map[string]interface{}{
			"order":       i + 1,
			"name":        e.Name,
			"type":        e.Type,
			"description": sources.Describe(e),
		}
		if e.Template != "" {
			entry["template"] = e.Template
		}
		list = append(list, entry)
	}

	result := map[string]interface{}{
		"sources":         list,
		"total_sources":   len(list),
		"browser_enabled": appCfg.Browser.Enabled,
		"output_dir":      appCfg.OutputDir,
		"config_path":     s.cfg.ConfigPath,
	}
	if appCfg.Browser.Enabled {
		result["proxy_template"] = appCfg.Browser.ProxyTemplate
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleDownloadPaper handles the download_paper tool
func (s *Server) handleDownloadPaper(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := strings.TrimSpace(request.GetString("identifier", ""))
	if identifier == "" {
		return mcp.NewToolResultError("identifier parameter is required"), nil
	}

	startTime := time.Now()
	result := s.pipeline.Orchestrator.Download(ctx, identifier)

	response := map[string]interface{}{
		"result":      result,
		"output_dir":  s.cfg.AppConfig.OutputDir,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindPDFLinks handles the find_pdf_links tool
func (s *Server) handleFindPDFLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := strings.TrimSpace(request.GetString("url", ""))
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	startTime := time.Now()
	outcome := s.pipeline.Classifier.Fetch(ctx, urlStr)

	result := map[string]interface{}{
		"url":           urlStr,
		"final_url":     outcome.URL,
		"kind":          outcome.Kind.String(),
		"status_code":   outcome.StatusCode,
		"content_type":  outcome.ContentType,
		"fetch_time_ms": time.Since(startTime).Milliseconds(),
	}

	switch outcome.Kind {
	case models.OutcomeBinaryDocument:
		result["bytes"] = len(outcome.Body)
	case models.OutcomeHTMLPage:
		candidates := s.pipeline.Extractor.Candidates(outcome.Text, outcome.URL)
		result["candidates"] = candidates
		result["total_candidates"] = len(candidates)
		result["title"], result["preview"] = pagePreview(outcome.Text)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("fetch failed [%s]: %v", utils.CategorizeError(outcome.Err), outcome.Err)), nil
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStartBatch handles the start_batch tool
func (s *Server) handleStartBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inputFile := strings.TrimSpace(request.GetString("input_file", ""))
	if inputFile == "" {
		return mcp.NewToolResultError("input_file parameter is required"), nil
	}

	// An active job for the file is reported before the file is read again
	if s.jobManager.IsRunning(inputFile) {
		return s.alreadyRunning(inputFile, ""), nil
	}

	identifiers, err := load.LoadIdentifiers(inputFile, s.log)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot load identifiers [%s]: %v", utils.CategorizeError(err), err)), nil
	}

	job, created := s.jobManager.CreateJob(inputFile)
	if !created {
		return s.alreadyRunning(inputFile, job.ID), nil
	}

	s.jobManager.UpdateProgress(job.ID, Progress{Total: len(identifiers)})
	go s.runBatchJob(job.ID, inputFile, identifiers)

	result := map[string]interface{}{
		"status":      "started",
		"message":     "Batch started successfully",
		"job_id":      job.ID,
		"input_file":  inputFile,
		"identifiers": len(identifiers),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":     job.ID,
		"input_file": job.InputFile,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"total":      job.Total,
		"processed":  job.Processed,
		"succeeded":  job.Succeeded,
		"failed":     job.Failed,
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ResultsPath != "" {
		result["results_path"] = job.ResultsPath
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// alreadyRunning reports the active job for inputFile. An empty jobID is looked up.
func (s *Server) alreadyRunning(inputFile, jobID string) *mcp.CallToolResult {
	if jobID == "" {
		for _, j := range s.jobManager.ListJobs() {
			if j.InputFile == inputFile && !j.finished() {
				jobID = j.ID
				break
			}
		}
	}
	result := map[string]interface{}{
		"status":     "already_running",
		"message":    "A batch is already in progress for this file",
		"job_id":     jobID,
		"input_file": inputFile,
	}
	return mcp.NewToolResultText(formatJSON(result))
}

// handleCancelBatch handles the cancel_batch tool
func (s *Server) handleCancelBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	if !s.jobManager.CancelJob(jobID) {
		result := map[string]interface{}{
			"job_id":  jobID,
			"status":  job.Status,
			"message": "Job already finished",
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	s.log.WithField("job_id", jobID).Info("Batch cancelled by client")
	result := map[string]interface{}{
		"job_id":  jobID,
		"status":  JobStatusCancelled,
		"message": "Cancellation requested; identifiers already in flight finish first",
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.jobManager.ListJobs()
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.Before(jobs[k].StartedAt) })

	entries := make([]map[string]interface{}, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, map[string]interface{}{
			"job_id":     j.ID,
			"input_file": j.InputFile,
			"status":     j.Status,
			"started_at": j.StartedAt.Format(time.RFC3339),
			"total":      j.Total,
			"processed":  j.Processed,
		})
	}
	result := map[string]interface{}{
		"count": len(entries),
		"jobs":  entries,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runBatchJob runs a batch in the background. MCP jobs never use the resume store.
func (s *Server) runBatchJob(jobID, inputFile string, identifiers []string) {
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")
	jobCtx := s.jobManager.GetContext(jobID)
	jobLog := s.log.WithField("job_id", jobID)

	opts := batch.OptionsFromConfig(*s.cfg.AppConfig)
	opts.OnProgress = func(st batch.RunStats) {
		s.jobManager.UpdateProgress(jobID, Progress{
			Total:     st.Total,
			Processed: st.Success + st.Failed + st.Skipped,
			Succeeded: st.Success,
			Failed:    st.Failed,
		})
	}
	runner := batch.NewRunner(s.pipeline.Orchestrator, nil, opts, jobLog)
	report := runner.Run(jobCtx, identifiers)
	batch.LogSummary(jobLog, report)

	stem := utils.SanitizeFilename(strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile)))
	filename := stem + "_" + jobID[:8] + "_" + config.GetEffectiveResultsFilename(*s.cfg.AppConfig)
	path, err := batch.WriteResults(s.cfg.AppConfig.OutputDir, filename, report.Results)
	if err != nil {
		s.jobManager.UpdateStatus(jobID, JobStatusFailed, fmt.Sprintf("failed to write results: %v", err))
		return
	}
	s.jobManager.SetResultsPath(jobID, path)

	if jobCtx.Err() != nil {
		s.jobManager.UpdateStatus(jobID, JobStatusCancelled, "")
		return
	}
	s.jobManager.UpdateStatus(jobID, JobStatusCompleted, "")
}

// pagePreview returns the page title and the start of its body as markdown
func pagePreview(page string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	bodyHTML, err := doc.Find("body").First().Html()
	if err != nil {
		return title, ""
	}
	content, err := md.NewConverter("", true, nil).ConvertString(bodyHTML)
	if err != nil {
		return title, ""
	}
	return title, truncate(strings.TrimSpace(content), previewLen)
}

// truncate cuts s to at most maxLen runes, never splitting a UTF-8 sequence
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
