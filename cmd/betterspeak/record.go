package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/betterspeak/internal/app"
)

type recordOptions struct {
	seconds float64
	text    string
	save    bool
}

func newRecordCmd() *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record, detect and print a report",
		Long: `Record from the configured capture device, then run detection over the
recording and print the counts per disfluency type and the PSS.

Recording stops after --seconds, or on Ctrl-C when --seconds is 0.

Examples:
  betterspeak record --seconds 30 --text "The rainbow is a division of white light"
  betterspeak record --text "$(cat passage.txt)" --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd, opts)
		},
	}
	cmd.Flags().Float64Var(&opts.seconds, "seconds", 0, "recording length in seconds (0 records until Ctrl-C)")
	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "reference text read by the speaker")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the recording as a WAV file")
	return cmd
}

func runRecord(cmd *cobra.Command, opts recordOptions) error {
	if opts.seconds < 0 {
		return fmt.Errorf("--seconds must not be negative")
	}
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, level := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx, cfg, app.WithLogger(logger), app.WithLevel(level))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	// Load models while the speaker reads.
	warmed := make(chan struct{})
	go func() {
		defer close(warmed)
		_ = application.Warm(context.WithoutCancel(ctx))
	}()

	sess := application.Session()
	syllables := sess.SetText(opts.text)
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	out := cmd.ErrOrStderr()
	if opts.seconds > 0 {
		fmt.Fprintf(out, "Recording for %.1fs (%d syllables in text). Press Ctrl-C to stop early.\n", opts.seconds, syllables)
	} else {
		fmt.Fprintf(out, "Recording (%d syllables in text). Press Ctrl-C to stop.\n", syllables)
	}
	waitRecording(ctx, time.Duration(opts.seconds*float64(time.Second)), func() time.Duration {
		return sess.Status().Recorded
	}, out)

	if err := sess.Stop(); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	fmt.Fprintln(out, "Detecting…")
	<-warmed

	detectCtx := context.WithoutCancel(ctx)
	m, err := sess.Detect(detectCtx)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	var saved string
	if opts.save {
		saved, err = sess.Save(detectCtx)
		if err != nil {
			return fmt.Errorf("save recording: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderReport(m, saved))
	return nil
}

// waitRecording blocks until d has elapsed (forever when d is 0) or ctx is
// done, redrawing the recorded time on terminals.
func waitRecording(ctx context.Context, d time.Duration, recorded func() time.Duration, out io.Writer) {
	var deadline <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	live := stderrIsTerminal()
	for {
		select {
		case <-ctx.Done():
			if live {
				fmt.Fprintln(out)
			}
			return
		case <-deadline:
			if live {
				fmt.Fprintln(out)
			}
			return
		case <-tick.C:
			if live {
				fmt.Fprintf(out, "\r  %s recorded", recorded().Truncate(100*time.Millisecond))
			}
		}
	}
}
