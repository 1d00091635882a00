package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

type queryOptions struct {
	mode        string
	topK        int
	chunkTopK   int
	contextOnly bool
	jsonOutput  bool
	showSources bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from the indexed documents",
		Long: `Answer a question from the indexed documents.

The question is read from stdin when no argument is given and stdin is
not a terminal.

Examples:
  amanrag query "Who does Alpha love?"
  amanrag query --mode naive "summarize the report"
  echo "what is Beta?" | amanrag query --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runQuery(cmd, app.NewService(cfg), question, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(rag.ModeHybrid), "Retrieval mode: naive, local, global, hybrid")
	cmd.Flags().IntVar(&opts.topK, "top-k", 0, "Entities or relations to match (0 uses the configured default)")
	cmd.Flags().IntVar(&opts.chunkTopK, "chunk-top-k", 0, "Chunks to keep in the context (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.contextOnly, "context-only", false, "Print the assembled context without calling the model")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the full answer as JSON")
	cmd.Flags().BoolVar(&opts.showSources, "sources", false, "List the chunks the answer was built from")
	return cmd
}

func readQuestion(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if in == os.Stdin && isTerminal(os.Stdin) {
		return "", amerrors.New(amerrors.ErrCodeQueryEmpty, "a question is required", nil).
			WithSuggestion(`pass it as an argument: amanrag query "..."`)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read question from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func runQuery(cmd *cobra.Command, svc *app.Service, question string, opts queryOptions) error {
	res, err := svc.QueryWithParam(cmd.Context(), question, opts.mode, rag.QueryParam{
		TopK:            opts.topK,
		ChunkTopK:       opts.chunkTopK,
		OnlyNeedContext: opts.contextOnly,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ans := res.Response
	if opts.jsonOutput {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else if ans.Status != rag.StatusError {
		fmt.Fprintln(out, strings.TrimSpace(ans.Text))
		if opts.showSources {
			printSources(out, ans)
		}
	}

	if ans.Status == rag.StatusError {
		code := ans.ErrorCode
		if code == "" {
			code = amerrors.ErrCodeQueryFailed
		}
		return amerrors.New(code, ans.Error, nil)
	}
	return nil
}

func printSources(w io.Writer, ans *rag.Answer) {
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, src := range ans.Sources {
		text := strings.Join(strings.Fields(src.Content), " ")
		if r := []rune(text); len(r) > 120 {
			text = string(r[:117]) + "..."
		}
		fmt.Fprintf(w, "  [%d] %s  %s\n", i+1, src.ChunkID, text)
	}
}
