package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ecoportal/internal/domain/upload"
	"ecoportal/internal/middleware"
	"ecoportal/internal/pkg/jwt"
)

func newRootCmd(open func() (*env, error)) *cobra.Command {
	var e *env
	root := &cobra.Command{
		Use:          "storagectl",
		Short:        "Inspect and maintain the upload directory",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			e, err = open()
			return err
		},
	}
	current := func() *env { return e }

	root.AddCommand(
		newUsageCmd(current),
		newSweepCmd(current),
		newRmCmd(current),
		newTokenCmd(current),
	)
	return root
}

func newUsageCmd(current func() *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show stored bytes per category against the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := current().pipeline.Usage(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			categories := make([]string, 0, len(report.Categories))
			for c := range report.Categories {
				categories = append(categories, string(c))
			}
			sort.Strings(categories)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tFILES\tSIZE")
			for _, c := range categories {
				u := report.Categories[upload.Category(c)]
				fmt.Fprintf(tw, "%s\t%d\t%s\n", c, u.Files, humanize.IBytes(uint64(u.Bytes)))
			}
			fmt.Fprintf(tw, "total\t\t%s of %s (%.1f%%)\n",
				humanize.IBytes(uint64(report.TotalBytes)),
				humanize.IBytes(uint64(report.QuotaBytes)),
				100*float64(report.TotalBytes)/float64(report.QuotaBytes),
			)
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newSweepCmd(current func() *env) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove staged files left behind by interrupted uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := current()
			if !cmd.Flags().Changed("max-age") {
				maxAge = e.cfg.StagingMaxAge
			}
			removed, err := e.pipeline.SweepStaging(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d staged file(s) older than %s\n", removed, maxAge)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", time.Hour, "minimum age of a staged file before it is removed (default UPLOAD_STAGING_MAX_AGE)")
	return cmd
}

func newRmCmd(current func() *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete artifacts by relative path or public URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := current()
			for _, p := range args {
				if err := e.pipeline.Delete(cmd.Context(), p); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p)
			}
			return nil
		},
	}
}

func newTokenCmd(current func() *env) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := current()
			if ttl <= 0 {
				ttl = e.cfg.JWTTTL
			}
			token, err := jwt.New(e.cfg.JWTSecret, ttl).GenerateToken(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "who the token is issued to, e.g. an email address")
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
