package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/aperture/internal/knowledge"
)

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index [dataset-id]",
	Short: "Index a dataset's descriptive metadata for semantic search",
	Long: `Index a dataset's descriptive metadata for semantic search.

Examples:
  aperture index ds-42 --title "Roman Coins" --description "A hoard of bronze coins"
  aperture index ds-42 --abstract "Catalog of a late-imperial hoard." --keywords numismatics,bronze
  aperture index ds-42 --title "Roman Coins" --description "..." --async
  aperture index --file datasets.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			return indexFromFile(cmd, file)
		}
		if len(args) != 1 {
			return fmt.Errorf("a dataset id is required unless --file is given")
		}
		datasetID := args[0]
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		abstract, _ := cmd.Flags().GetString("abstract")
		keywords, _ := cmd.Flags().GetString("keywords")
		subjects, _ := cmd.Flags().GetString("subjects")
		async, _ := cmd.Flags().GetBool("async")

		req := knowledge.IndexRequest{
			DatasetID:   datasetID,
			Title:       title,
			Description: description,
			Abstract:    abstract,
			Keywords:    splitCSV(keywords),
			Subjects:    splitCSV(subjects),
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if async {
			resp, err := client.post(cmd.Context(), "/datasets/"+datasetID+"/index-jobs", req)
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued index job %s for dataset %s", result["job_id"], datasetID)
			return nil
		}

		resp, err := client.operation(cmd.Context(), "index_dataset", req)
		if err != nil {
			return err
		}
		var result knowledge.IndexResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed dataset %s: %d embeddings created", result.DatasetID, result.EmbeddingsCreated)
		for _, r := range result.Results {
			printStatus("Chunk", "%s", r.EmbeddingID)
		}
		return nil
	},
}

// indexFromFile enqueues one index job per entry in a JSON array of
// dataset metadata records.
func indexFromFile(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var reqs []knowledge.IndexRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("%s contains no datasets", path)
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	queued := 0
	for _, req := range reqs {
		if req.DatasetID == "" {
			printWarning("Skipping entry with no dataset_id")
			continue
		}
		resp, err := client.post(cmd.Context(), "/datasets/"+req.DatasetID+"/index-jobs", req)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", req.DatasetID, err)
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return fmt.Errorf("dataset %s: %w", req.DatasetID, err)
		}
		printStatus("Queued", "%s (job %s)", req.DatasetID, result["job_id"])
		queued++
	}

	printSuccess("Queued %d index jobs", queued)
	return nil
}

func init() {
	indexCmd.Flags().String("file", "", "JSON file with an array of dataset metadata records to enqueue")
	indexCmd.Flags().String("title", "", "dataset title")
	indexCmd.Flags().String("description", "", "dataset description")
	indexCmd.Flags().String("abstract", "", "dataset abstract")
	indexCmd.Flags().String("keywords", "", "comma-separated keywords")
	indexCmd.Flags().String("subjects", "", "comma-separated subject classifications")
	indexCmd.Flags().Bool("async", false, "queue a background index job instead of indexing inline")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question answered from indexed dataset metadata",
	Long: `Ask a question answered from indexed dataset metadata.

Retrieves the most similar content chunks and synthesizes an answer with
dataset citations from them.

Examples:
  aperture query "which datasets cover ancient currency?"
  aperture query "bronze age artifacts" --dataset ds-42 --top-k 3
  aperture query "bronze age artifacts" --no-answer`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		datasetID, _ := cmd.Flags().GetString("dataset")
		noAnswer, _ := cmd.Flags().GetBool("no-answer")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.operation(cmd.Context(), "query", map[string]any{
			"query":          strings.Join(args, " "),
			"top_k":          topK,
			"dataset_id":     datasetID,
			"include_answer": !noAnswer,
		})
		if err != nil {
			return err
		}

		var result knowledge.QueryResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Answer != nil {
			fmt.Println(*result.Answer)
			fmt.Println()
		}
		if result.TotalResults == 0 {
			printWarning("No matching datasets found")
			return nil
		}
		printStep("Sources (%d):", result.TotalResults)
		for _, m := range result.Results {
			printStatus(m.DatasetID, "%s (%.3f)", m.ContentType, m.Similarity)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().Int("top-k", 0, "number of chunks to retrieve (default 5)")
	queryCmd.Flags().String("dataset", "", "restrict retrieval to one dataset")
	queryCmd.Flags().Bool("no-answer", false, "skip answer synthesis, show matches only")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantically search indexed dataset metadata",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		datasetID, _ := cmd.Flags().GetString("dataset")
		contentType, _ := cmd.Flags().GetString("content-type")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.operation(cmd.Context(), "semantic_search", map[string]any{
			"query":        strings.Join(args, " "),
			"top_k":        topK,
			"dataset_id":   datasetID,
			"content_type": contentType,
		})
		if err != nil {
			return err
		}

		var result knowledge.SearchResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result.Results)
		}

		if result.TotalResults == 0 {
			printWarning("No matches")
			return nil
		}
		for _, m := range result.Results {
			fmt.Printf("%.3f  %-12s %s\n", m.Similarity, m.ContentType, m.EmbeddingID)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 0, "number of results (default 10)")
	searchCmd.Flags().String("dataset", "", "restrict search to one dataset")
	searchCmd.Flags().String("content-type", "", "filter by content type (metadata, abstract, keywords)")
	searchCmd.Flags().Bool("json", false, "print raw results as JSON")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <dataset-id>",
	Short: "Delete all stored embeddings for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.operation(cmd.Context(), "delete_dataset", map[string]any{
			"dataset_id": args[0],
		})
		if err != nil {
			return err
		}

		var result knowledge.DeleteResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %d embeddings for dataset %s", result.DeletedCount, result.DatasetID)
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge-base statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}

		var stats struct {
			Embeddings int            `json:"embeddings"`
			Jobs       map[string]int `json:"jobs"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Embeddings", "%d", stats.Embeddings)
		for _, status := range []string{"pending", "running", "completed", "failed"} {
			printStatus("Jobs "+status, "%d", stats.Jobs[status])
		}
		return nil
	},
}
