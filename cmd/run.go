package cmd

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/control"
	"github.com/xkilldash9x/applicant-courier/internal/observability"
	"github.com/xkilldash9x/applicant-courier/internal/pipeline"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type runOptions struct {
	startURL string
	mode     string
	template string
	max      int
	force    bool
	headless bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start a session and message applicants in the foreground",
		Long: `Starts a session on the applicant list and works through it until the list is
exhausted, the session cap is reached, or the run is interrupted. In manual mode each
message is written and left for you to send.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.mode {
			case "", store.ModeManual, store.ModeAuto:
			default:
				return fmt.Errorf("invalid --mode %q: want manual or auto", opts.mode)
			}
			if opts.max < 0 {
				return fmt.Errorf("--max must not be negative")
			}
			if cmd.Flags().Changed("headless") {
				a.cfg.SetBrowserHeadless(opts.headless)
			}
			if opts.startURL != "" {
				a.cfg.SetBrowserStartURL(opts.startURL)
			}
			return a.run(cmd, opts)
		},
	}

	f := runCmd.Flags()
	f.StringVar(&opts.startURL, "start-url", "", "page to open before starting (defaults to browser.start_url)")
	f.StringVar(&opts.mode, "mode", "", "manual or auto (defaults to the stored mode)")
	f.StringVar(&opts.template, "template", "", "message template (defaults to the stored template)")
	f.IntVar(&opts.max, "max", 0, "session cap; 0 keeps the stored cap")
	f.BoolVar(&opts.force, "force", false, "skip the applicants page check")
	f.BoolVar(&opts.headless, "headless", false, "run the browser headless")
	return runCmd
}

func (a *app) run(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()
	logger := a.logger

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	b, release, err := a.launch(ctx, a.cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer release()

	if err := ensureApplicantsPage(ctx, b, "", opts.force); err != nil {
		return err
	}

	auto := assemble(ctx, a.cfg, b, st, logger)
	d := control.NewDispatcher(st, auto.engine, auto.composer, logger)

	current, err := st.State(ctx)
	if err != nil {
		return err
	}
	mode, tpl := opts.mode, opts.template
	if mode == "" {
		mode = current.Mode
	}
	if tpl == "" {
		tpl = current.Template
	}
	if opts.max > 0 {
		if err := dispatch(ctx, d, control.TypeUpdateSettings, map[string]interface{}{"maxPerSession": opts.max}); err != nil {
			return err
		}
	}
	if err := dispatch(ctx, d, control.TypeStartAutomation, map[string]interface{}{"mode": mode, "template": tpl}); err != nil {
		return err
	}

	runErr := auto.engine.Run(ctx)

	// The run context may be cancelled by now; the final read uses a fresh one.
	final, err := st.State(page.Detach(ctx))
	if err != nil {
		logger.Warn("Could not read final state.", zap.Error(err))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (sent %d)\n", final.Status, final.SentCount)
		logger.Info("Session ended.", observability.Status(final.Status), zap.Int("sent", final.SentCount))
	}

	if errors.Is(runErr, pipeline.ErrStopRequested) {
		return nil
	}
	return runErr
}
