package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danh12004/KLTN/pkg/rag"
	"github.com/danh12004/KLTN/pkg/store"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <store> <text...>",
		Short: "Print the chunks of a store nearest to a question",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runQuery,
	}

	cmd.Flags().Int("k", 3, "number of results to return")
	cmd.Flags().Bool("full", false, "show full content instead of just sources")
	cmd.Flags().Int("context", 0, "number of surrounding chunks from the same source to show")
	cmd.Flags().Bool("joined", false, "print the joined context exactly as the advisory agents receive it")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	name := args[0]
	query := strings.Join(args[1:], " ")
	k, _ := cmd.Flags().GetInt("k")
	full, _ := cmd.Flags().GetBool("full")
	contextSize, _ := cmd.Flags().GetInt("context")
	joined, _ := cmd.Flags().GetBool("joined")
	out := cmd.OutOrStdout()

	if joined {
		fmt.Fprintln(out, a.manager.Retrieve(cmd.Context(), name, query, k))
		return nil
	}

	a.logger.Debug("searching", "store", name, "query", query, "k", k)
	results, err := a.manager.Search(cmd.Context(), name, query, k)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found")
		return nil
	}

	var h *store.Handle
	if contextSize > 0 {
		// already registered by Search
		if h, err = a.manager.GetStore(cmd.Context(), name); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(results))
	for i, r := range results {
		printHeader(out, r)

		if !full && contextSize == 0 {
			continue
		}
		fmt.Fprintln(out)

		if contextSize > 0 {
			rows := surroundingRows(h.Documents, r.Row, contextSize)
			for j, row := range rows {
				if row == r.Row {
					fmt.Fprintln(out, ">>> MATCHED CHUNK <<<")
				}
				fmt.Fprintln(out, h.Documents[row].Content)
				if j < len(rows)-1 {
					fmt.Fprintln(out)
				}
			}
		} else {
			fmt.Fprintln(out, r.Document.Content)
		}

		if i < len(results)-1 {
			fmt.Fprintln(out, "\n"+strings.Repeat("-", 80)+"\n")
		}
	}
	return nil
}

func printHeader(w io.Writer, r rag.Result) {
	fmt.Fprintf(w, "Distance: %.4f | %s", r.Distance, r.Document.Source)
	var tags []string
	for _, t := range []string{r.Document.Topic, r.Document.SubTopic, r.Document.SubTopicValue} {
		if t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(tags, " / "))
	}
	fmt.Fprintln(w)
}

// surroundingRows returns the rows within contextSize of target that come
// from the same source file, in row order.
func surroundingRows(docs []rag.Document, target, contextSize int) []int {
	start := max(target-contextSize, 0)
	end := min(target+contextSize+1, len(docs))

	var rows []int
	for i := start; i < end; i++ {
		if docs[i].Source == docs[target].Source {
			rows = append(rows, i)
		}
	}
	return rows
}
