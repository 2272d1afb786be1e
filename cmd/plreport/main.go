// Command plreport prints the profit and loss report for a date range.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/Keoroanthony/go-storefront/configs"
	"github.com/Keoroanthony/go-storefront/internal/db"
	"github.com/Keoroanthony/go-storefront/internal/reports"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, from, to, status string

	cmd := &cobra.Command{
		Use:   "plreport",
		Short: "Print per-product profit and loss",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := reports.ParseRange(from, to)
			if err != nil {
				return err
			}
			statuses, err := reports.ParseStatuses(status)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gdb, err := db.Open(cfg.Database, zap.NewNop())
			if err != nil {
				return err
			}

			summary, err := reports.NewService(gdb).ProfitLoss(context.Background(), r, statuses)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), summary, cfg.Shop.Currency)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("STOREFRONT_CONFIG"), "path to the YAML config file")
	cmd.Flags().StringVar(&from, "from", "", "start date, e.g. 2024-01-01")
	cmd.Flags().StringVar(&to, "to", "", "end date, inclusive")
	cmd.Flags().StringVar(&status, "status", "", "comma separated order statuses (default: all but cancelled)")
	return cmd
}

func render(w io.Writer, s *reports.BusinessSummary, currency string) error {
	table := tablewriter.NewWriter(w)
	table.Header("Product", "Sold", "Revenue", "Cost", "Profit", "Margin %")
	for _, p := range s.Products {
		if err := table.Append([]string{
			p.ProductName,
			fmt.Sprint(p.QuantitySold),
			p.Revenue.StringFixed(2),
			p.Cost.StringFixed(2),
			p.Profit.StringFixed(2),
			p.ProfitMargin.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nTotal (%s): revenue %s, cost %s, profit %s, margin %s%%, units %d\n",
		currency,
		s.Revenue.StringFixed(2), s.Cost.StringFixed(2), s.Profit.StringFixed(2),
		s.ProfitMargin.StringFixed(2), s.ProductsSold)
	return err
}
