package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/scttfrdmn/aperture/internal/knowledge"
	"github.com/scttfrdmn/aperture/internal/retrieval"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Indexer DatasetIndexer
	Querier KnowledgeQuerier
	Deleter DatasetDeleter
}

// NewMCPServer creates an MCP server exposing the knowledge-base operations
// as tools for agent use over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"aperture",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("aperture — semantic retrieval over research dataset metadata. Index datasets, search them, and ask questions answered from retrieved context."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("index_dataset",
			mcp.WithDescription("Embed a dataset's descriptive fields (title+description, abstract, keywords/subjects) and store them for semantic search."),
			mcp.WithString("dataset_id", mcp.Description("Unique dataset identifier"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Dataset title")),
			mcp.WithString("description", mcp.Description("Dataset description")),
			mcp.WithString("abstract", mcp.Description("Dataset abstract")),
			mcp.WithArray("keywords", mcp.Description("Keyword list")),
			mcp.WithArray("subjects", mcp.Description("Subject classification list")),
		),
		mcpIndexDataset(deps),
	)

	s.AddTool(
		mcp.NewTool("query_knowledge_base",
			mcp.WithDescription("Ask a question against the indexed datasets; returns ranked matches plus a synthesized answer with dataset citations."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of matches to retrieve (default 5)")),
			mcp.WithString("dataset_id", mcp.Description("Restrict retrieval to one dataset")),
			mcp.WithBoolean("include_answer", mcp.Description("Generate an answer from retrieved context (default true)")),
		),
		mcpQueryKnowledgeBase(deps),
	)

	s.AddTool(
		mcp.NewTool("semantic_search",
			mcp.WithDescription("Semantically search indexed dataset metadata; returns ranked matches without answer generation."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default 10)")),
			mcp.WithString("dataset_id", mcp.Description("Restrict search to one dataset")),
			mcp.WithString("content_type", mcp.Description("Filter by content type: metadata, abstract, or keywords")),
		),
		mcpSemanticSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_dataset",
			mcp.WithDescription("Remove every stored embedding belonging to a dataset."),
			mcp.WithString("dataset_id", mcp.Description("Dataset whose embeddings should be removed"), mcp.Required()),
		),
		mcpDeleteDataset(deps),
	)

	return s
}

func mcpIndexDataset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasetID, err := req.RequireString("dataset_id")
		if err != nil {
			return mcpError("dataset_id is required"), nil
		}

		result, err := deps.Indexer.Index(ctx, knowledge.IndexRequest{
			DatasetID:   datasetID,
			Title:       req.GetString("title", ""),
			Description: req.GetString("description", ""),
			Abstract:    req.GetString("abstract", ""),
			Keywords:    req.GetStringSlice("keywords", nil),
			Subjects:    req.GetStringSlice("subjects", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("indexing failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Indexed dataset %s: %d embeddings created", datasetID, result.EmbeddingsCreated)), nil
	}
}

func mcpQueryKnowledgeBase(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		resp, err := deps.Querier.Query(ctx, knowledge.QueryRequest{
			Query:         query,
			TopK:          req.GetInt("top_k", 0),
			DatasetID:     req.GetString("dataset_id", ""),
			IncludeAnswer: req.GetBool("include_answer", true),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSemanticSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		resp, err := deps.Querier.Search(ctx, retrieval.SearchRequest{
			Query:       query,
			TopK:        req.GetInt("top_k", 0),
			DatasetID:   req.GetString("dataset_id", ""),
			ContentType: req.GetString("content_type", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if resp.TotalResults == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(resp.Results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteDataset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasetID, err := req.RequireString("dataset_id")
		if err != nil {
			return mcpError("dataset_id is required"), nil
		}

		result, err := deps.Deleter.DeleteDataset(ctx, datasetID)
		if err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Deleted %d embeddings for dataset %s", result.DeletedCount, datasetID)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
