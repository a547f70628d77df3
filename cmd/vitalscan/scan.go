package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitevitals/vitalscan/internal/audit"
	"github.com/sitevitals/vitalscan/internal/audit/axe"
	"github.com/sitevitals/vitalscan/internal/audit/headers"
	"github.com/sitevitals/vitalscan/internal/audit/lighthouse"
	"github.com/sitevitals/vitalscan/internal/config"
)

// scanOutput is what the scan command prints to stdout.
type scanOutput struct {
	URL        string                 `json:"url"`
	Lighthouse audit.LighthouseResult `json:"lighthouse"`
	Axe        audit.AxeResult        `json:"axe"`
	Headers    audit.HeaderReport     `json:"headers"`
}

func newScanCmd() *cobra.Command {
	var allowMock bool

	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Run a one-off scan locally and print the result",
		Long: `Runs the page audit, the accessibility audit and the security header
check against a single URL without the queue or database, then prints the
combined result as JSON. Useful for development.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			target, err := audit.ValidateURL(args[0])
			if err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}

			page, err := lighthouse.NewChromedp(lighthouse.Config{
				MaxParallel:       1,
				UserAgent:         cfg.Audit.UserAgent,
				NavigationTimeout: cfg.NavTimeout(),
			})
			if err != nil {
				return fmt.Errorf("page auditor init: %w", err)
			}
			defer page.Close()

			a11y, err := axe.NewChromedp(axe.Config{
				ScriptURL:         cfg.Audit.AxeScript,
				UserAgent:         cfg.Audit.UserAgent,
				NavigationTimeout: cfg.NavTimeout(),
			})
			if err != nil {
				return fmt.Errorf("accessibility auditor init: %w", err)
			}
			defer a11y.Close()

			checker := headers.New(headers.NewCollyFetcher(headers.CollyConfig{
				UserAgent: cfg.Audit.UserAgent,
				Timeout:   cfg.NavTimeout(),
			}))

			ctx := cmd.Context()
			out := scanOutput{
				URL:        target,
				Lighthouse: page.Run(ctx, target),
				Axe:        a11y.Run(ctx, target),
				Headers:    checker.Check(ctx, target),
			}
			if allowMock {
				if out.Lighthouse.Source == audit.SourceFailed {
					out.Lighthouse = audit.MockLighthouse(target)
				}
				if out.Axe.Source == audit.SourceFailed {
					out.Axe = audit.MockAxe(target)
				}
				if out.Headers.Source == audit.SourceFailed {
					out.Headers = audit.MockHeaders(target)
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&allowMock, "mock", false, "substitute mock payloads when an audit fails")
	return cmd
}
