package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/format"
	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/internal/pipeline"
	"github.com/kitchen-mate/clipper/internal/upload"
)

var (
	clipMethod  string
	clipRefresh bool
	clipFormat  string
	clipFile    string
	clipSave    bool
	clipTags    []string
	clipNotes   string
	clipUser    string
)

var clipCmd = &cobra.Command{
	Use:   "clip [url]",
	Short: "Extract a recipe from a URL or uploaded file",
	Long:  "Runs structured-data extraction with AI fallback against a recipe page, or AI extraction against an uploaded image or document, and prints the result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCLIEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		req := pipeline.Request{
			OwnerID:      clipUser,
			Method:       model.Method(clipMethod),
			ForceRefresh: clipRefresh,
		}
		switch {
		case clipFile != "":
			content, err := os.ReadFile(clipFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", clipFile)
			}
			file, err := upload.Validate(content, clipFile, env.Limits)
			if err != nil {
				return err
			}
			req.Upload = file
		case len(args) == 1:
			req.URL = args[0]
		default:
			return eris.New("either a url argument or --file is required")
		}

		outcome, err := env.Pipeline.Extract(cmd.Context(), req)
		if err != nil {
			return err
		}

		zap.L().Info("clip complete",
			zap.String("source", outcome.Source.CanonicalKey),
			zap.String("method", string(outcome.Result.Method)),
			zap.Bool("from_cache", outcome.FromCache),
		)

		out, err := format.Render(outcome.Result.Payload, format.Format(clipFormat))
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if clipSave {
			fork, isNew, err := env.Pipeline.SaveFork(cmd.Context(), clipUser, outcome.Result, clipTags, clipNotes)
			if err != nil {
				return err
			}
			verb := "saved"
			if !isNew {
				verb = "already saved"
			}
			fmt.Printf("%s as %s", verb, fork.ID)
			if len(fork.Tags) > 0 {
				fmt.Printf(" [%s]", strings.Join(fork.Tags, ", "))
			}
			fmt.Println()
		}

		return nil
	},
}

func init() {
	clipCmd.Flags().StringVar(&clipMethod, "method", "", "force extraction method (deterministic or ai)")
	clipCmd.Flags().BoolVar(&clipRefresh, "refresh", false, "bypass the parse cache and re-check source content")
	clipCmd.Flags().StringVar(&clipFormat, "format", "text", "output format (text, markdown, json, yaml)")
	clipCmd.Flags().StringVar(&clipFile, "file", "", "extract from an uploaded image or document instead of a url")
	clipCmd.Flags().BoolVar(&clipSave, "save", false, "save the result to your collection")
	clipCmd.Flags().StringSliceVar(&clipTags, "tags", nil, "tags to apply when saving")
	clipCmd.Flags().StringVar(&clipNotes, "notes", "", "notes to apply when saving")
	clipCmd.Flags().StringVar(&clipUser, "user", "local", "owner id for saved recipes")
	rootCmd.AddCommand(clipCmd)
}
