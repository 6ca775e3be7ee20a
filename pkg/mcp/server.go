package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/download"
)

const (
	serverName    = "paper-scraper"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	Pipeline   *download.Pipeline // nil = built from AppConfig
}

// Server wraps the MCP server with paper-scraper tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	pipeline   *download.Pipeline
	log        *logrus.Entry
	jobManager *JobManager
	stop       context.CancelFunc
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger.WithField("component", "mcp")

	pipeline := cfg.Pipeline
	if pipeline == nil {
		var err error
		pipeline, err = download.NewPipeline(*cfg.AppConfig, logrus.NewEntry(cfg.Logger))
		if err != nil {
			return nil, fmt.Errorf("build download pipeline: %w", err)
		}
	}
	ctx, stop := context.WithCancel(context.Background())
	pipeline.Start(ctx)

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		pipeline:   pipeline,
		log:        log,
		jobManager: NewJobManager(),
		stop:       stop,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// list_sources - List the configured mirror sources
	listSourcesTool := mcp.NewTool("list_sources",
		mcp.WithDescription("List the mirror sources tried for each identifier, in order"),
	)
	s.mcpServer.AddTool(listSourcesTool, s.handleListSources)

	// download_paper - Locate and save one paper
	downloadPaperTool := mcp.NewTool("download_paper",
		mcp.WithDescription("Locate and download the PDF for one DOI or DOI URL. Blocks until the paper is saved or every source failed."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("A DOI such as 10.1038/nature12373, optionally prefixed with https://doi.org/ or doi:"),
		),
	)
	s.mcpServer.AddTool(downloadPaperTool, s.handleDownloadPaper)

	// find_pdf_links - Classify a URL and list PDF candidates on it
	findLinksTool := mcp.NewTool("find_pdf_links",
		mcp.WithDescription("Fetch a URL once and report whether it is a PDF or list the PDF candidate links found on the page"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to fetch"),
		),
	)
	s.mcpServer.AddTool(findLinksTool, s.handleFindPDFLinks)

	// start_batch - Start a background batch
	startBatchTool := mcp.NewTool("start_batch",
		mcp.WithDescription("Start downloading every identifier in a CSV/TSV/XLSX file in the background. Returns immediately with a job ID."),
		mcp.WithString("input_file",
			mcp.Required(),
			mcp.Description("Path to the identifier file, readable by the server"),
		),
	)
	s.mcpServer.AddTool(startBatchTool, s.handleStartBatch)

	// get_job_status - Check status of a batch job
	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status and counters of a batch job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_batch"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	// cancel_batch - Stop a running batch job
	cancelBatchTool := mcp.NewTool("cancel_batch",
		mcp.WithDescription("Cancel a running batch job. Identifiers not yet started are skipped; the partial results file is still written."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_batch"),
		),
	)
	s.mcpServer.AddTool(cancelBatchTool, s.handleCancelBatch)

	// list_jobs - List batch jobs
	listJobsTool := mcp.NewTool("list_jobs",
		mcp.WithDescription("List every batch job started by this server, oldest first"),
	)
	s.mcpServer.AddTool(listJobsTool, s.handleListJobs)

	s.log.Infof("Registered %d MCP tools", 7)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs and releases the pipeline
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	s.stop()
	s.pipeline.Close()
	return nil
}
