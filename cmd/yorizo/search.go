package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yorizo/yorizo/internal/agent"
	"github.com/yorizo/yorizo/internal/retriever"
)

var (
	queryUser    string
	queryCompany string
	queryTopK    int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Print the documents most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.store.Query(cmd.Context(), strings.Join(args, " "), queryTopK, retriever.Filters{
			OwnerKey:  a.ownerKey(queryUser),
			CompanyID: queryCompany,
		})
		if err != nil {
			return err
		}

		printResults(os.Stdout, results)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the consultant a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		answer, err := a.consultant.Answer(cmd.Context(), agent.ChatInput{
			Question:  strings.Join(args, " "),
			OwnerKey:  a.ownerKey(queryUser),
			CompanyID: queryCompany,
			TopK:      queryTopK,
		})
		if err != nil {
			return err
		}

		fmt.Println(answer.Answer)
		if len(answer.Citations) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for _, c := range answer.Citations {
				fmt.Printf("  - %s\n", c)
			}
		}
		return nil
	},
}

func printResults(w io.Writer, results []retriever.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching documents.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.4f] %s (%s)\n", i+1, r.Score, r.Title, r.ID)
		fmt.Fprintf(w, "   %s\n", preview(r.Text, 120))
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, askCmd} {
		c.Flags().StringVar(&queryUser, "user", "", "restrict to documents owned by this user")
		c.Flags().StringVar(&queryCompany, "company", "", "restrict to documents of this company")
		c.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of documents to retrieve (default rag.default_top_k)")
	}
}
