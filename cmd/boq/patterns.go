package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/boq-price-match/internal/cli"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Manage learned matches",
		Long: `Learned patterns remember which catalog item a reviewer chose for a
description in its section context. Later queries with the same
description and context resolve to that item directly.`,
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsLearnCmd())

	return cmd
}

func patternsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned patterns, most used first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")

			s, err := initStores(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			patterns, err := s.catalog.ListPatterns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list patterns: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(patterns) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No learned patterns yet"))
				return nil
			}
			fmt.Fprintln(out, cli.RenderPatterns(patterns))
			return nil
		},
	}

	cmd.Flags().Int("limit", 50, "Maximum number of patterns (0 for all)")
	return cmd
}

func patternsLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Record the catalog item a description should match",
		Example: `  boq patterns learn -d "Galvanised guard rail" --context "Metalwork" --code GW001`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			code, _ := cmd.Flags().GetString("code")

			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}
			q.Code = ""

			s, err := initStores(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := initMatcher(ctx, s)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.matcher.RecordManualMatch(ctx, q, code); err != nil {
				return fmt.Errorf("failed to learn pattern: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s Learned %q → %s", cli.BrainIcon, q.Description, code)))
			return nil
		},
	}

	cmd.Flags().StringP("description", "d", "", "Item description (required)")
	cmd.Flags().StringP("unit", "u", "", "Unit of measure")
	cmd.Flags().StringSlice("context", nil, "Section headers above the item, outermost first")
	cmd.Flags().String("code", "", "Catalog item code to learn (required)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}
