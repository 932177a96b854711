// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the blog catalog and sync engine for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/catalog"
	"github.com/starford/mdblog/internal/models"
	"github.com/starford/mdblog/internal/storage"
	"github.com/starford/mdblog/internal/syncer"
)

// Syncer runs one reconciliation pass.
type Syncer interface {
	Sync(ctx context.Context) (*syncer.Report, error)
}

// Server wraps the MCP server with mdblog tools.
type Server struct {
	mcp     *server.MCPServer
	catalog *catalog.Service
	sources storage.Provider
	syncer  Syncer
}

// New creates a new MCP server with all mdblog tools registered.
func New(cat *catalog.Service, sources storage.Provider, s Syncer) *Server {
	srv := &Server{catalog: cat, sources: sources, syncer: s}

	srv.mcp = server.NewMCPServer(
		"mdblog",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	srv.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List blog categories with the number of published articles in each."),
	), srv.listCategories)

	srv.mcp.AddTool(mcp.NewTool("list_articles",
		mcp.WithDescription("List published article summaries, newest first. "+
			"Filter by month (YYYY-MM) or take the latest N."),
		mcp.WithString("category", mcp.Description("Optional category to restrict the listing to")),
		mcp.WithString("month", mcp.Description("Optional month (YYYY-MM); takes precedence over limit")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of articles when no month is given (default 20)")),
	), srv.listArticles)

	srv.mcp.AddTool(mcp.NewTool("read_article",
		mcp.WithDescription("Read one published article as rendered HTML, or its Markdown source."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Article category")),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Article slug")),
		mcp.WithString("format", mcp.Description("html (default) or source"), mcp.Enum("html", "source")),
	), srv.readArticle)

	srv.mcp.AddTool(mcp.NewTool("sync_articles",
		mcp.WithDescription("Reconcile the store with the articles directory and report what changed."),
	), srv.syncArticles)

	srv.mcp.AddTool(mcp.NewTool("get_article_contract",
		mcp.WithDescription("Returns the article format contract. "+
			"Call this before writing article files so they publish correctly."),
	), srv.getArticleContract)

	srv.mcp.AddResource(
		mcp.NewResource(ArticleFormatURI, "Article Format Contract",
			mcp.WithResourceDescription("Layout and Markdown structure every article must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		srv.readArticleFormatResource,
	)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.catalog.Categories(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cats)
}

func (s *Server) listArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	month := req.GetString("month", "")

	var (
		list []models.Article
		err  error
	)
	if month != "" {
		list, err = s.catalog.ArticlesInMonth(ctx, category, month)
	} else {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		list, err = s.catalog.Articles(ctx, models.ArticleQuery{Category: category, Limit: limit})
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list)
}

func (s *Server) readArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id := models.Identity{Category: category, Slug: slug}

	if req.GetString("format", "html") == "source" {
		data, err := s.sources.Read(id)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}

	a, err := s.catalog.Article(ctx, category, slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(a)
}

type syncResult struct {
	RunID     string   `json:"run_id"`
	Removed   []string `json:"removed"`
	Saved     []string `json:"saved"`
	Unchanged int      `json:"unchanged"`
	Failures  []string `json:"failures"`
}

func (s *Server) syncArticles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.syncer == nil {
		return mcp.NewToolResultError("sync unavailable"), nil
	}
	report, err := s.syncer.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(syncResult{
		RunID:     report.RunID,
		Removed:   orEmpty(report.Removed),
		Saved:     orEmpty(report.Saved),
		Unchanged: report.Unchanged,
		Failures:  report.FailureMessages(),
	})
}

func (s *Server) getArticleContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArticleFormatContract), nil
}

func (s *Server) readArticleFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ArticleFormatURI,
			MIMEType: "text/markdown",
			Text:     ArticleFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
