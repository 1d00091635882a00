package cmd

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what is indexed and which backends are active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := app.NewService(cfg).Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			return printStatus(cmd, st)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, st *rag.IndexStatus) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "working dir\t%s\n", st.WorkingDir)
	fmt.Fprintf(tw, "documents\t%d\n", st.Documents)
	fmt.Fprintf(tw, "chunks\t%d\n", st.Chunks)
	fmt.Fprintf(tw, "entities\t%d\n", st.Entities)
	fmt.Fprintf(tw, "relations\t%d\n", st.Relations)
	fmt.Fprintf(tw, "keywords\t%d\n", st.Keywords)

	namespaces := make([]string, 0, len(st.Vectors))
	for ns := range st.Vectors {
		namespaces = append(namespaces, ns)
	}
	slices.Sort(namespaces)
	for _, ns := range namespaces {
		fmt.Fprintf(tw, "vectors (%s)\t%d\n", ns, st.Vectors[ns])
	}
	fmt.Fprintf(tw, "backends\tgraph=%s vector=%s keyword=%s\n", st.GraphBackend, st.VectorBackend, st.KeywordBackend)
	fmt.Fprintf(tw, "models\tembedding=%s llm=%s extractor=%s\n", st.EmbeddingModel, st.LLMModel, st.Extractor)
	return tw.Flush()
}
