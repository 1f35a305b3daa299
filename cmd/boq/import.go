package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/boq-price-match/internal/boq"
	"github.com/Veraticus/boq-price-match/internal/cli"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <pricelist.xlsx>",
		Short: "Import a price list",
		Long: `Read a price list workbook and store it as the matching catalog.

By default the existing catalog is replaced. With --append the items are
added to it instead (SQLite only).`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("append", false, "Add to the existing catalog instead of replacing it")
	cmd.Flags().Bool("dry-run", false, "Parse the workbook without saving")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	appendItems, _ := cmd.Flags().GetBool("append")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open price list: %w", err)
	}
	defer func() { _ = f.Close() }()

	items, err := boq.NewReader(slog.Default()).ReadPriceList(f)
	if err != nil {
		return fmt.Errorf("failed to read price list: %w", err)
	}
	if len(items) == 0 {
		return errors.New("price list contains no priced items")
	}

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Parsed %d price items (dry run, nothing saved)", len(items))))
		return nil
	}

	s, err := initStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case appendItems && s.pg != nil:
		return errors.New("--append is only supported with the sqlite driver")
	case appendItems:
		err = s.local.SavePriceItems(ctx, items)
	default:
		err = s.catalog.ReplacePriceItems(ctx, items)
	}
	if err != nil {
		return fmt.Errorf("failed to save price items: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d price items from %s", len(items), args[0])))
	return nil
}
