package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"dupsweep/internal/sweep"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const dateLayout = "2006-01-02"

// stdin is shared so that consecutive prompts do not lose buffered input.
var stdin = bufio.NewReader(os.Stdin)

func recordFilterFromFlags(cmd *cobra.Command) (sweep.RecordFilter, error) {
	var filter sweep.RecordFilter
	filter.Name, _ = cmd.Flags().GetString("name")
	filter.MimeType, _ = cmd.Flags().GetString("mime")

	after, _ := cmd.Flags().GetString("after")
	if after != "" {
		t, err := time.ParseInLocation(dateLayout, after, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --after date: %w", err)
		}
		filter.ModifiedAfter = t
	}
	before, _ := cmd.Flags().GetString("before")
	if before != "" {
		t, err := time.ParseInLocation(dateLayout, before, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --before date: %w", err)
		}
		filter.ModifiedBefore = t
	}
	return filter, nil
}

// shortSig trims a content signature for display.
func shortSig(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}

func printRecord(r *sweep.FileRecord) {
	fmt.Printf("%s  %8s  %-8s  %s\n",
		r.ModifiedAt.Local().Format("2006-01-02 15:04"),
		humanize.Bytes(uint64(r.SizeBytes)),
		r.MimeCategory,
		r.ExternalID,
	)
}

func printGroup(g *sweep.DuplicateGroup) {
	fmt.Printf("%s  %s x %d  (%s reclaimable)\n",
		shortSig(g.Key.Signature),
		humanize.Bytes(uint64(g.Key.SizeBytes)),
		len(g.Members),
		humanize.Bytes(uint64(g.WastedSpace())),
	)
	for i, r := range g.Members {
		marker := "dup "
		if i == 0 {
			marker = "keep"
		}
		fmt.Printf("  %s  %s  %s\n", marker, r.ModifiedAt.Local().Format("2006-01-02 15:04"), r.ExternalID)
	}
}

func printTree(nodes []*sweep.TreeNode, indent string) {
	for _, n := range nodes {
		size := ""
		if n.Record.MimeType != sweep.FolderMimeType {
			size = "  " + humanize.Bytes(uint64(n.Record.SizeBytes))
		}
		fmt.Printf("%s%s%s\n", indent, n.Record.Name, size)
		printTree(n.Children, indent+"  ")
	}
}

func printDeleteResult(res *sweep.DeleteResult) {
	for _, item := range res.Items {
		switch item.Outcome {
		case sweep.OutcomeDeleted:
			fmt.Printf("trashed          %s\n", item.ExternalID)
		case sweep.OutcomeFailed:
			fmt.Printf("%-16s %s: %v\n", item.Outcome, item.ExternalID, item.Err)
		default:
			fmt.Printf("%-16s %s\n", item.Outcome, item.ExternalID)
		}
	}
	fmt.Printf("Batch %s: trashed %d, failed or skipped %d, freed %s\n",
		res.BatchID,
		res.DeletedCount,
		res.FailedOrSkippedCount,
		humanize.Bytes(uint64(res.TotalBytesFreed)),
	)
}

// confirm asks a yes/no question on the terminal. Without a terminal it
// refuses, so scripts must pass --yes.
func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal; pass --yes to confirm")
	}
	fmt.Printf("%s [y/N] ", prompt)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// readPassphrase reads a passphrase without echo from the terminal, or a
// single line from stdin when it is not a terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
