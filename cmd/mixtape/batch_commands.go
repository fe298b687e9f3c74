package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mixtape/internal/api"
	"mixtape/internal/apiclient"
	"mixtape/internal/batch"
	"mixtape/internal/links"
	"mixtape/internal/workflow"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Create, run, and inspect download batches",
	}

	batchCmd.AddCommand(newBatchCreateCommand(ctx))
	batchCmd.AddCommand(newBatchActionCommand(ctx, "start", "Start downloading a pending batch", startBatch))
	batchCmd.AddCommand(newBatchActionCommand(ctx, "cancel", "Cancel a batch at the next task boundary", cancelBatch))
	batchCmd.AddCommand(newBatchActionCommand(ctx, "delete", "Delete a batch and its record", deleteBatch))
	batchCmd.AddCommand(newBatchShowCommand(ctx))
	batchCmd.AddCommand(newBatchListCommand(ctx))
	batchCmd.AddCommand(newBatchProgressCommand(ctx))
	batchCmd.AddCommand(newBatchWatchCommand(ctx))
	batchCmd.AddCommand(newBatchValidateCommand(ctx))
	batchCmd.AddCommand(newBatchCleanupCommand(ctx))

	return batchCmd
}

func newBatchCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		fromFile string
		start    bool
		noTags   bool
		watch    bool
		tagsFlag batch.TagDefaults
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "create NAME [URL...]",
		Short: "Create a batch from links or pasted share text",
		Long: "Create a batch named NAME. Links come from the arguments and, with --file, from a text file\n" +
			"holding one link or share snippet per line (use - for stdin).",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateRequest{
				Request: batch.Request{
					Name:        args[0],
					URLs:        args[1:],
					DefaultTags: tagsFlag,
				},
			}
			if noTags {
				autoTag := false
				req.AutoTag = &autoTag
			}
			if fromFile != "" {
				text, err := readTextInput(cmd, fromFile)
				if err != nil {
					return err
				}
				req.Text = text
			}

			return ctx.withClient(func(client *apiclient.Client) error {
				b, err := client.CreateBatch(cmd.Context(), req, start || watch)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, b)
				}
				out := cmd.OutOrStdout()
				verb := "Created"
				if start || watch {
					verb = "Created and started"
				}
				fmt.Fprintf(out, "%s batch %s (%s) with %d task(s)\n", verb, b.ID, b.Name, b.TotalTasks)
				if watch {
					return watchBatch(cmd, client, b.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read links from a file (- for stdin)")
	cmd.Flags().BoolVar(&start, "start", false, "Start the batch right away")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Start the batch and follow its progress")
	cmd.Flags().BoolVar(&noTags, "no-tags", false, "Do not write ID3 tags into downloaded files")
	cmd.Flags().StringVar(&tagsFlag.Genre, "genre", "", "Genre tag override")
	cmd.Flags().StringVar(&tagsFlag.Publisher, "publisher", "", "Publisher tag override")
	cmd.Flags().StringVar(&tagsFlag.Album, "album", "", "Album tag")
	cmd.Flags().StringVar(&tagsFlag.AlbumArtist, "album-artist", "", "Album artist tag")
	cmd.Flags().StringVar(&tagsFlag.Date, "date", "", "Date/year tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the created batch as JSON")
	return cmd
}

type batchAction func(ctx context.Context, cmd *cobra.Command, client *apiclient.Client, id string) error

func newBatchActionCommand(ctx *commandContext, use, short string, action batchAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				id, err := resolveBatchID(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				return action(cmd.Context(), cmd, client, id)
			})
		},
	}
}

func startBatch(ctx context.Context, cmd *cobra.Command, client *apiclient.Client, id string) error {
	b, err := client.StartBatch(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started batch %s (%d task(s))\n", b.ID, b.TotalTasks)
	return nil
}

func cancelBatch(ctx context.Context, cmd *cobra.Command, client *apiclient.Client, id string) error {
	if err := client.CancelBatch(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled batch %s\n", id)
	return nil
}

func deleteBatch(ctx context.Context, cmd *cobra.Command, client *apiclient.Client, id string) error {
	if err := client.DeleteBatch(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted batch %s\n", id)
	return nil
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a batch and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				id, err := resolveBatchID(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				b, err := client.GetBatch(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, b)
				}
				out := cmd.OutOrStdout()
				renderBatchDetail(out, b, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch as JSON")
	return cmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !batch.Status(status).Valid() {
				return fmt.Errorf("unknown status %q (want one of %s)", status, statusNames())
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				list, err := client.ListBatches(cmd.Context(), status)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if list.Count == 0 {
					fmt.Fprintln(out, "No batches")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Status", "Progress", "Done", "Failed", "Created"},
					buildBatchRows(list.Batches),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list batches with this status ("+statusNames()+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")
	return cmd
}

func newBatchProgressCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "progress ID",
		Short: "Print the current progress of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				id, err := resolveBatchID(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				progress, err := client.Progress(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, progress)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, progressLine(progress, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print progress as JSON")
	return cmd
}

func newBatchWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Follow a batch until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				id, err := resolveBatchID(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				return watchBatch(cmd, client, id)
			})
		},
	}
}

func watchBatch(cmd *cobra.Command, client *apiclient.Client, id string) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	var last workflow.Progress
	err := client.Watch(cmd.Context(), id, func(p workflow.Progress) error {
		last = p
		fmt.Fprintln(out, progressLine(p, colorize))
		return nil
	})
	if err != nil {
		return err
	}
	if last.Status.IsTerminal() {
		fmt.Fprintf(out, "Batch %s %s: %s\n", last.Name, last.Status, summaryText(last.Summary))
	}
	return nil
}

func newBatchValidateCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate [TEXT...]",
		Short: "Check which lines of pasted text hold usable links",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "\n")
			if fromFile != "" {
				fileText, err := readTextInput(cmd, fromFile)
				if err != nil {
					return err
				}
				text = strings.TrimSpace(text + "\n" + fileText)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to validate: pass links as arguments or use --file")
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				report, err := client.Validate(cmd.Context(), text)
				if asJSON {
					if jsonErr := writeJSON(cmd, report); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				renderValidation(cmd.OutOrStdout(), report)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read text from a file (- for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func renderValidation(w io.Writer, report links.Report) {
	colorize := shouldColorize(w)
	fmt.Fprintln(w, renderStatusLine("Valid", statusOK, fmt.Sprintf("%d", report.TotalValid), colorize))
	for _, u := range report.ValidURLs {
		fmt.Fprintf(w, "%s  %s\n", statusIndent, u)
	}
	if report.TotalInvalid == 0 {
		return
	}
	fmt.Fprintln(w, renderStatusLine("Invalid", statusWarn, fmt.Sprintf("%d", report.TotalInvalid), colorize))
	for _, line := range report.InvalidLines {
		fmt.Fprintf(w, "%s  line %d: %s (%s)\n", statusIndent, line.LineNumber, line.Content, line.Reason)
	}
}

func newBatchCleanupCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete batches older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return errors.New("--days must not be negative")
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				result, err := client.Cleanup(cmd.Context(), days)
				if err != nil {
					return err
				}
				scope := "the configured retention"
				if days > 0 {
					scope = fmt.Sprintf("%d day(s)", days)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d batch(es) older than %s\n", result.Removed, scope)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in days (default: storage.cleanup_days)")
	return cmd
}

func statusNames() string {
	names := make([]string, 0, 5)
	for _, status := range batch.AllStatuses() {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

// resolveBatchID accepts a full id or a unique prefix such as the short ids
// printed by `batch list`.
func resolveBatchID(ctx context.Context, client *apiclient.Client, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("batch id is required")
	}
	if len(value) >= 32 {
		return value, nil
	}
	list, err := client.ListBatches(ctx, "")
	if err != nil {
		return "", err
	}
	var matches []string
	for _, b := range list.Batches {
		if b.ID == value {
			return value, nil
		}
		if strings.HasPrefix(b.ID, value) {
			matches = append(matches, b.ID)
		}
	}
	switch len(matches) {
	case 0:
		return value, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("batch id prefix %q is ambiguous (%d matches)", value, len(matches))
	}
}

func readTextInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
