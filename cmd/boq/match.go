package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/boq-price-match/internal/cli"
	"github.com/Veraticus/boq-price-match/internal/engine"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a single BOQ description",
		Long: `Match one line item against the catalog and show the chosen item and
the best alternatives.`,
		Example: `  boq match -d "Excavate trench n.e. 1.5m deep" -u m3 --context "D20 Excavating"
  boq match -d "4mm2 armoured cable" --method COHERE_RERANK --json`,
		RunE: runMatch,
	}

	cmd.Flags().StringP("description", "d", "", "Item description (required)")
	cmd.Flags().StringP("unit", "u", "", "Unit of measure")
	cmd.Flags().String("code", "", "Item code from the BOQ")
	cmd.Flags().Float64("quantity", 0, "Quantity")
	cmd.Flags().StringSlice("context", nil, "Section headers above the item, outermost first")
	cmd.Flags().StringP("method", "m", "LOCAL", "Match method ("+strings.Join(model.MethodNames(), ", ")+")")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

func queryFromFlags(cmd *cobra.Command) (model.MatchQuery, error) {
	description, _ := cmd.Flags().GetString("description")
	unit, _ := cmd.Flags().GetString("unit")
	code, _ := cmd.Flags().GetString("code")
	quantity, _ := cmd.Flags().GetFloat64("quantity")
	headers, _ := cmd.Flags().GetStringSlice("context")

	q := model.MatchQuery{
		Description:    description,
		Unit:           unit,
		Code:           code,
		Quantity:       quantity,
		ContextHeaders: headers,
	}
	if cmd.Flags().Lookup("method") != nil {
		name, _ := cmd.Flags().GetString("method")
		method, err := model.ParseMatchMethod(name)
		if err != nil {
			return q, err
		}
		q.Method = method
	}
	return q, nil
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	asJSON, _ := cmd.Flags().GetBool("json")

	q, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}

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

	res, err := m.matcher.Match(ctx, q)
	if err != nil {
		return fmt.Errorf("match failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, cli.RenderMatch(q, res))
	return nil
}

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List match methods available with the current credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadMatchConfig()
			if err != nil {
				return err
			}
			registry, err := engine.NewRegistry(cmd.Context(), cfg, nil, slog.Default())
			if err != nil {
				return err
			}
			defer registry.Close()

			available := map[string]bool{}
			for _, name := range registry.Available() {
				available[name] = true
			}

			out := cmd.OutOrStdout()
			for _, name := range model.MethodNames() {
				method, err := model.ParseMatchMethod(name)
				if err != nil {
					return err
				}
				if available[name] {
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%-14s min confidence %.2f", name, cfg.MinConfidenceFor(method.Kind))))
				} else {
					fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%s %-14s no credentials", cli.ErrorIcon, name)))
				}
			}
			return nil
		},
	}
}
