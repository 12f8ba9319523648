package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type documentView struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	Size          int64  `json:"size"`
	ChunkCount    int    `json:"chunk_count"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func UploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Long:  "Upload a txt, md, or pdf file for ingestion. Re-uploading a filename replaces the document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.UploadDocument(args[0])
			if err != nil {
				return err
			}

			var doc documentView
			if err := json.Unmarshal(resp.Data, &doc); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if asJSON(cmd) {
				return printJSON(doc)
			}
			fmt.Printf("Uploaded %s (%s), status: %s\n", doc.Filename, doc.ID, doc.Status)
			fmt.Println("Ingestion runs in the background; check status with 'doctalk docs'")
			return nil
		},
	}
	return cmd
}

func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List and manage documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents")
			if err != nil {
				return err
			}

			var docs []documentView
			if err := json.Unmarshal(resp.Data, &docs); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if asJSON(cmd) {
				return printJSON(docs)
			}
			if len(docs) == 0 {
				fmt.Println("No documents found")
				return nil
			}
			for _, d := range docs {
				line := fmt.Sprintf("  %s  %-10s %s (%d chunks)", d.ID, d.Status, d.Filename, d.ChunkCount)
				if d.FailureReason != "" {
					line += "  [" + d.FailureReason + "]"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.AddCommand(docsDeleteCmd())
	cmd.AddCommand(docsReingestCmd())

	return cmd
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/documents/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("Document %s deleted\n", args[0])
			return nil
		},
	}
}

func docsReingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reingest <id>",
		Short: "Retry ingestion of a failed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Post("/documents/"+args[0]+"/reingest", nil)
			if err != nil {
				return err
			}

			var out struct {
				JobID string `json:"job_id"`
			}
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			fmt.Printf("Re-ingestion enqueued (job %s)\n", out.JobID)
			return nil
		},
	}
}

func asJSON(cmd *cobra.Command) bool {
	outputJSON, _ := cmd.Flags().GetBool("output")
	return outputJSON
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
