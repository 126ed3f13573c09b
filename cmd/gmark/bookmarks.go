package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/engine"
	"github.com/nikbrunner/gmark/internal/picker"
	"github.com/nikbrunner/gmark/internal/search"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

func newSaveCommand(a *app) *cobra.Command {
	var req engine.SaveRequest

	cmd := &cobra.Command{
		Use:   "save <url>",
		Short: "Save a bookmark, classifying it unless a category is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			result, err := a.engine.SaveBookmark(cmd.Context(), req)
			var dup *engine.DuplicateError
			if errors.As(err, &dup) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Already saved as %q (%s)\n", dup.Existing.Title, dup.Existing.ID)
				return err
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "title")
	cmd.Flags().StringVar(&req.Description, "description", "", "description")
	cmd.Flags().StringVar(&req.Category, "category", "", "category (skips classification)")
	cmd.Flags().StringSliceVar(&req.Tags, "tags", nil, "comma separated tags")
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	var filter search.Filter
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search bookmark titles, then open or copy the pick",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			results, err := a.engine.Search(cmd.Context(), query, filter)
			if err != nil {
				return err
			}

			if printOnly {
				return printJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No bookmarks found for '%s'\n", query)
				return nil
			}

			if len(results) == 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "Opening: %s\n", results[0].Bookmark.Title)
				return openURL(results[0].Bookmark.URL)
			}

			categories := a.engine.Categories()
			final, err := tea.NewProgram(picker.New(results, query, categories.Color)).Run()
			if err != nil {
				return fmt.Errorf("running picker: %w", err)
			}
			chosen, action, ok := final.(picker.Picker).Selected()
			if !ok {
				return nil
			}
			if action == picker.ActionCopy {
				return clipboard.WriteAll(chosen.URL)
			}
			return openURL(chosen.URL)
		},
	}

	cmd.Flags().StringVar(&filter.Category, "category", "", "only this category")
	cmd.Flags().StringVar(&filter.Tag, "tag", "", "only bookmarks with this tag")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum results")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print results as JSON instead of picking")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var toClipboard, asHTML bool

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Export the store as JSON, or bookmarks as Netscape HTML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.engine.Export(cmd.Context())
			if err != nil {
				return err
			}

			var b strings.Builder
			if asHTML {
				if err := tree.WriteHTML(&b, tree.FromBookmarks(doc.Bookmarks)); err != nil {
					return err
				}
			} else if err := printJSON(&b, doc); err != nil {
				return err
			}

			switch {
			case toClipboard:
				if err := clipboard.WriteAll(b.String()); err != nil {
					return fmt.Errorf("copying to clipboard: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Copied %d bookmarks to the clipboard\n", len(doc.Bookmarks))
			case len(args) == 1:
				if err := os.WriteFile(args[0], []byte(b.String()), 0644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d bookmarks to %s\n", len(doc.Bookmarks), args[0])
			default:
				fmt.Fprint(cmd.OutOrStdout(), b.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&toClipboard, "clipboard", false, "copy to the clipboard")
	cmd.Flags().BoolVar(&asHTML, "html", false, "write Netscape bookmark HTML grouped by category")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON export or a Netscape bookmark HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".html" || ext == ".htm" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()

				src, err := tree.ReadHTML(f)
				if err != nil {
					return fmt.Errorf("parsing %s: %w", path, err)
				}
				roots, err := src.GetTree(cmd.Context())
				if err != nil {
					return err
				}
				result, err := a.engine.ImportLinks(cmd.Context(), roots)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var doc storage.ExportDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			result, err := a.engine.Import(cmd.Context(), &doc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
