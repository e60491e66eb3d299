package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"dupsweep/internal/app"
	"dupsweep/internal/config"
	"dupsweep/internal/sweep"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file from the default location.
func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a DupsweepApp for the source selected
// by --source. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Rescan", "DeleteAll").
func newApp(cmd *cobra.Command, operation string) (*app.DupsweepApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}

	source, _ := cmd.Flags().GetString("source")
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewDupsweepApp(cmd.Context(), cfg, operation, app.Options{Source: source, Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "dupsweep",
	Short:        "Find and clean up duplicate files",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		localRoot, _ := cmd.Flags().GetString("local-root")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		ownerID := uuid.New().String()
		cfg := config.NewConfig(ownerID, defaults["base_dir"])

		if localRoot != "" {
			abs, err := filepath.Abs(localRoot)
			if err != nil {
				return fmt.Errorf("resolving local root: %w", err)
			}
			cfg.Sources = append(cfg.Sources, config.SourceConfig{Type: "local", Name: "local", LocalRoot: abs})
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Owner ID: %s\n", ownerID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		if len(cfg.Sources) == 0 {
			fmt.Println("No sources configured yet; add a [[sources]] entry to the config file.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Owner ID: %s\n", cfg.OwnerID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Strict:   %t\n", cfg.Scan.Strict)
		fmt.Println("\nSources:")
		for _, s := range cfg.Sources {
			switch s.Type {
			case "local":
				fmt.Printf("  %-12s local  %s\n", s.Name, s.LocalRoot)
			case "s3":
				fmt.Printf("  %-12s s3     s3://%s/%s\n", s.Name, s.S3Bucket, s.S3Prefix)
			default:
				fmt.Printf("  %-12s %s\n", s.Name, s.Type)
			}
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the record database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rescan a source and replace its stored inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Rescan")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Rescan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Scanned %s: %d record(s) stored", a.Source().Name, res.RecordCount)
		if len(res.Failed) > 0 {
			fmt.Printf(", %d skipped (see log)", len(res.Failed))
		}
		fmt.Println()
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := recordFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		field, _ := cmd.Flags().GetString("sort")
		direction, _ := cmd.Flags().GetString("order")

		a, err := newApp(cmd, "ListRecords")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ListRecords(cmd.Context(), filter, sweep.RecordSort{Field: field, Direction: direction})
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No records found.")
			return nil
		}
		for _, r := range records {
			printRecord(r)
		}
		return nil
	},
}

// dupes command
var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "List duplicate groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		flat, _ := cmd.Flags().GetBool("flat")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		a, err := newApp(cmd, "ListDuplicates")
		if err != nil {
			return err
		}
		defer a.Close()

		listing, err := a.ListDuplicates(cmd.Context())
		if err != nil {
			return err
		}

		if listing.TotalGroups == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}

		if flat {
			for _, d := range sweep.Paginate(sweep.FlattenDuplicates(listing.Groups), page, pageSize) {
				fmt.Printf("%s  %8s  %d/%d  %s  (keeps %s)\n",
					shortSig(d.Key.Signature),
					humanize.Bytes(uint64(d.Record.SizeBytes)),
					d.DuplicateCount,
					d.GroupSize,
					d.Record.ExternalID,
					d.Original.ExternalID,
				)
			}
		} else {
			for _, g := range sweep.Paginate(listing.Groups, page, pageSize) {
				printGroup(g)
			}
		}

		fmt.Printf("\n%d group(s), %d duplicate(s), %s reclaimable\n",
			listing.TotalGroups,
			listing.TotalDuplicates,
			humanize.Bytes(uint64(listing.TotalWastedSpace)),
		)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Trash one file or the duplicates of one group",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		sig, _ := cmd.Flags().GetString("sig")
		size, _ := cmd.Flags().GetInt64("size")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		target := sweep.DeleteTarget{ExternalID: id, Key: sweep.FingerprintKey{Signature: sig, SizeBytes: size}}

		operation := "Delete"
		if dryRun {
			operation = "PreviewDelete"
		}
		a, err := newApp(cmd, operation)
		if err != nil {
			return err
		}
		defer a.Close()

		if dryRun {
			records, err := a.PreviewDeletion(cmd.Context(), target)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("Nothing to delete.")
				return nil
			}
			fmt.Println("Would trash:")
			for _, r := range records {
				printRecord(r)
			}
			return nil
		}

		res, err := a.DeleteDuplicate(cmd.Context(), target)
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		printDeleteResult(res)
		return nil
	},
}

// delete-all command
var deleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Trash the duplicates of every group",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(cmd, "DeleteAll")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if stats.TotalDuplicates == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}

		if !yes {
			prompt := fmt.Sprintf("Trash %d duplicate(s) in %d group(s), freeing %s?",
				stats.TotalDuplicates, stats.TotalGroups, humanize.Bytes(uint64(stats.TotalWastedSpace)))
			ok, err := confirm(prompt)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		res, err := a.DeleteAllDuplicates(cmd.Context())
		if err != nil {
			return fmt.Errorf("delete-all failed: %w", err)
		}

		fmt.Printf("Trashed %d file(s) across %d group(s), freed %s\n",
			res.DeletedCount, res.GroupsProcessed, humanize.Bytes(uint64(res.TotalBytesFreed)))
		if res.FailedOrSkippedCount > 0 || res.GroupErrors > 0 {
			fmt.Printf("%d item(s) failed or skipped, %d group(s) could not be processed (see log)\n",
				res.FailedOrSkippedCount, res.GroupErrors)
		}
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetStats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Groups:        %d\n", stats.TotalGroups)
		fmt.Printf("Duplicates:    %d\n", stats.TotalDuplicates)
		fmt.Printf("Reclaimable:   %s\n", humanize.Bytes(uint64(stats.TotalWastedSpace)))
		fmt.Printf("Largest group: %s\n", humanize.Bytes(uint64(stats.LargestGroupWaste)))
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show storage used per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "StorageReport")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.StorageReport(cmd.Context())
		if err != nil {
			return err
		}

		for _, c := range report.Categories {
			fmt.Printf("%-10s %8s files  %10s\n", c.Category, humanize.Comma(int64(c.Files)), humanize.Bytes(uint64(c.Bytes)))
		}
		fmt.Printf("%-10s %8s files  %10s\n", "total", humanize.Comma(int64(report.TotalFiles)), humanize.Bytes(uint64(report.TotalBytes)))
		return nil
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show stored records as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Tree")
		if err != nil {
			return err
		}
		defer a.Close()

		forest, err := a.Tree(cmd.Context())
		if err != nil {
			return err
		}
		if len(forest) == 0 {
			fmt.Println("No records found.")
			return nil
		}
		printTree(forest, "")
		return nil
	},
}

// activity command
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "View recent cleanup activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "Activity")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Activity(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No activity recorded.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-16s  %-32s  %-10s  %s saved\n",
				humanize.Time(e.CreatedAt),
				e.Action,
				e.Category,
				humanize.Bytes(uint64(e.BytesSaved)),
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.Finished() {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %-20s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				op.Parameters,
				duration,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("source", "s", "", "Source to operate on (default: first configured source)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print info and debug logs to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("local-root", "", "Add a local source rooted at this directory")
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)

	// keys and audit subcommands
	keysCmd.AddCommand(keysInitCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditExportCmd.Flags().StringP("out", "o", "", "Write the export to this file instead of stdout")
	auditExportCmd.Flags().String("upload", "", "Upload the export to the configured bucket under this name")
	auditExportCmd.Flags().BoolP("encrypt", "e", false, "Encrypt the export with the configured age key")
	auditCmd.AddCommand(auditDecryptCmd)
	auditDecryptCmd.Flags().StringP("out", "o", "", "Write the plaintext to this file instead of stdout")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().String("name", "", "Only records whose name contains this text")
	lsCmd.Flags().String("mime", "", "Only records with this exact MIME type")
	lsCmd.Flags().String("after", "", "Only records modified after this date (YYYY-MM-DD)")
	lsCmd.Flags().String("before", "", "Only records modified before this date (YYYY-MM-DD)")
	lsCmd.Flags().String("sort", sweep.SortByModifiedAt, "Sort by name, size, mimeType or modifiedAt")
	lsCmd.Flags().String("order", sweep.SortDesc, "Sort direction: asc or desc")
	rootCmd.AddCommand(dupesCmd)
	dupesCmd.Flags().Bool("flat", false, "List one line per duplicate instead of per group")
	dupesCmd.Flags().Int("page", 1, "Page to show")
	dupesCmd.Flags().Int("page-size", 0, "Entries per page (0 shows everything)")
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().String("id", "", "External id of a single file to trash")
	deleteCmd.Flags().String("sig", "", "Content signature of the group to clean")
	deleteCmd.Flags().Int64("size", 0, "Size in bytes of the group to clean")
	deleteCmd.Flags().Bool("dry-run", false, "Show what would be trashed without changing anything")
	deleteCmd.MarkFlagsMutuallyExclusive("id", "sig")
	deleteCmd.MarkFlagsRequiredTogether("sig", "size")
	rootCmd.AddCommand(deleteAllCmd)
	deleteAllCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().IntP("limit", "n", 20, "Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(auditCmd)
}
