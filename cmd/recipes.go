package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchen-mate/clipper/internal/format"
	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/internal/store"
)

var (
	recipesUser     string
	listLimit       int
	listCursor      string
	listTags        []string
	listSearch      string
	listModified    bool
	showFormat      string
	showLineage     bool
	updateTags      []string
	updateNotes     string
	reExtractFormat string
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Manage your saved recipe collection",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved recipes",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCLIEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		page, err := env.Store.ListForks(cmd.Context(), recipesUser, store.ListOptions{
			Cursor:       listCursor,
			Limit:        listLimit,
			Tags:         listTags,
			Search:       listSearch,
			ModifiedOnly: listModified,
		})
		if err != nil {
			return err
		}

		for _, item := range page.Items {
			marker := " "
			if item.IsModified {
				marker = "*"
			}
			line := fmt.Sprintf("%s %s  %s", marker, item.ID, item.Title)
			if len(item.Tags) > 0 {
				line += "  [" + strings.Join(item.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		if page.HasMore {
			fmt.Printf("more available: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

var recipesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCLIEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if showLineage {
			lineage, err := env.Store.GetForkWithLineage(cmd.Context(), recipesUser, args[0])
			if err != nil {
				return err
			}
			out, err := format.Render(lineage.Fork.Payload, format.Format(showFormat))
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			fmt.Printf("derived from %s parse %s of %s\n",
				lineage.Parent.Method, lineage.Parent.ID, lineage.Source.CanonicalKey)
			return nil
		}

		fork, err := env.Store.GetFork(cmd.Context(), recipesUser, args[0])
		if err != nil {
			return err
		}
		out, err := format.Render(fork.Payload, format.Format(showFormat))
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var recipesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update tags or notes on a saved recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCLIEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var patch model.ForkPatch
		if cmd.Flags().Changed("tags") {
			tags := updateTags
			patch.Tags = &tags
		}
		if cmd.Flags().Changed("notes") {
			notes := updateNotes
			patch.Notes = &notes
		}

		fork, err := env.Store.UpdateFork(cmd.Context(), recipesUser, args[0], patch)
		if err != nil {
			return err
		}
		fmt.Printf("updated %s\n", fork.ID)
		return nil
	},
}

var recipesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCLIEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.DeleteFork(cmd.Context(), recipesUser, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var recipesReExtractCmd = &cobra.Command{
	Use:   "re-extract <id>",
	Short: "Re-run extraction for the source behind a saved recipe",
	Long:  "Fetches the original page again and re-extracts with the same method. The saved recipe is left untouched; the fresh result is printed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCLIEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.Pipeline.ReExtract(cmd.Context(), recipesUser, args[0])
		if err != nil {
			return err
		}

		if outcome.ContentChanged != nil && !*outcome.ContentChanged {
			fmt.Println("source content unchanged")
		}
		out, err := format.Render(outcome.Result.Payload, format.Format(reExtractFormat))
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	recipesCmd.PersistentFlags().StringVar(&recipesUser, "user", "local", "owner id of the collection")

	recipesListCmd.Flags().IntVar(&listLimit, "limit", 0, "page size")
	recipesListCmd.Flags().StringVar(&listCursor, "cursor", "", "pagination cursor from a previous page")
	recipesListCmd.Flags().StringSliceVar(&listTags, "tags", nil, "only recipes carrying all of these tags")
	recipesListCmd.Flags().StringVar(&listSearch, "search", "", "title, ingredient, tag or notes substring")
	recipesListCmd.Flags().BoolVar(&listModified, "modified", false, "only recipes edited since saving")

	recipesShowCmd.Flags().StringVar(&showFormat, "format", "text", "output format (text, markdown, json, yaml)")
	recipesShowCmd.Flags().BoolVar(&showLineage, "lineage", false, "also print the parse result this recipe derives from")

	recipesUpdateCmd.Flags().StringSliceVar(&updateTags, "tags", nil, "replace the tag set")
	recipesUpdateCmd.Flags().StringVar(&updateNotes, "notes", "", "replace the notes")

	recipesReExtractCmd.Flags().StringVar(&reExtractFormat, "format", "text", "output format (text, markdown, json, yaml)")

	recipesCmd.AddCommand(recipesListCmd, recipesShowCmd, recipesUpdateCmd, recipesDeleteCmd, recipesReExtractCmd)
	rootCmd.AddCommand(recipesCmd)
}
