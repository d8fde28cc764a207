package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dolarprovider/internal/aggregate"
	"dolarprovider/internal/app"
	"dolarprovider/internal/config"
	"dolarprovider/internal/logging"
	"dolarprovider/internal/quote"
)

type options struct {
	configPath string
	verbose    bool
	timeout    time.Duration
	asJSON     bool
	base       string

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "dolar",
		Short: "Argentine peso / US dollar quotes",
		Long: `dolar scrapes the official, blue, MEP and CCL quotes published by
El Cronista (Mercados Online) and prints them.

Dollars may be given by label or alias: oficial, blue, mep, ccl,
informal, bolsa, contado, cable...`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if o.verbose {
				level = "debug"
			}
			l, err := logging.New(level, true)
			if err != nil {
				return err
			}
			o.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "path to config.json or config.yaml (optional)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", 30*time.Second, "overall timeout")

	quotesCmd := &cobra.Command{
		Use:   "quotes [dollar...]",
		Short: "Print buy/sell quotes (all dollars when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runQuotes(cmd, args)
		},
	}
	quotesCmd.Flags().BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")

	gapsCmd := &cobra.Command{
		Use:   "gaps",
		Short: "Print the gap of every dollar against a base quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runGaps(cmd)
		},
	}
	gapsCmd.Flags().StringVar(&o.base, "base", quote.Oficial.Label, "base dollar")
	gapsCmd.Flags().BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(quotesCmd, gapsCmd)
	return root
}

func (o *options) fetch(cmd *cobra.Command, kinds []quote.Kind) ([]quote.Quote, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	stack := app.Build(ctx, cfg, o.logger)
	defer stack.Close()
	return stack.Provider.Fetch(ctx, kinds)
}

func (o *options) runQuotes(cmd *cobra.Command, args []string) error {
	kinds, err := quote.ParseKinds(args)
	if err != nil {
		return err
	}
	qs, err := o.fetch(cmd, kinds)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if o.asJSON {
		err = writeJSON(out, struct {
			Quotes []quote.Quote `json:"quotes"`
		}{qs})
	} else {
		err = writeQuoteTable(out, qs)
	}
	if err != nil {
		return err
	}
	for _, q := range qs {
		if q.OK() {
			return nil
		}
	}
	return errors.New("no quotes received")
}

func (o *options) runGaps(cmd *cobra.Command) error {
	base, err := quote.ParseKind(o.base)
	if err != nil {
		return err
	}
	qs, err := o.fetch(cmd, quote.AllKinds())
	if err != nil {
		return err
	}
	gaps, err := aggregate.Gaps(qs, base)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if o.asJSON {
		return writeJSON(out, struct {
			Base string          `json:"base"`
			Gaps []aggregate.Gap `json:"gaps"`
		}{base.Label, gaps})
	}
	return writeGapTable(out, base, gaps)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeQuoteTable(w io.Writer, qs []quote.Quote) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOLLAR\tBUY\tSELL\tVAR\tTIME (UTC)")
	for _, q := range qs {
		if !q.OK() {
			fmt.Fprintf(tw, "%s\t-\t-\t-\terror: %s\n", q.Dollar, q.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			q.Dollar, num(q.Buy), num(q.Sell), pct(q.Variation), q.Timestamp.Format(time.DateTime))
	}
	return tw.Flush()
}

func writeGapTable(w io.Writer, base quote.Kind, gaps []aggregate.Gap) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DOLLAR\tSELL\tGAP vs %s\tSPREAD\n", base.Label)
	for _, g := range gaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.Dollar, num(&g.Sell), pct(&g.Percent), num(g.Spread))
	}
	return tw.Flush()
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64) + "%"
}
