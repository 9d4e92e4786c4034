package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/servio-ai/prospector-cli/internal/crm"
	"github.com/servio-ai/prospector-cli/internal/filter"
	"github.com/servio-ai/prospector-cli/internal/model"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Filter leads interactively from condition edits on stdin",
	Long: `Reads one JSON condition array per line from stdin, as an editor would
emit while the user types. Results are printed once the input settles for the
configured debounce delay; edits arriving faster replace the pending one.
An empty line clears the conditions. At end of input any pending result is
printed immediately.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return watchLoop(ctx, svc, os.Stdin, os.Stdout)
	},
}

// watchLoop feeds condition edits from in to the service's debounced
// evaluator and writes each settled result to out.
func watchLoop(ctx context.Context, svc *crm.Service, in io.Reader, out io.Writer) error {
	log := zap.L().With(zap.String("command", "watch"))

	var mu sync.Mutex
	printResult := func(leads []model.Lead) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(out, "%d matching leads\n", len(leads))
		formatLeads(out, leads)
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			svc.Evaluator().Cancel()
			svc.Evaluator().Wait()
			return nil
		case line, ok := <-lines:
			if !ok {
				svc.Evaluator().Flush()
				svc.Evaluator().Wait()
				select {
				case err := <-scanErr:
					return eris.Wrap(err, "watch: read input")
				default:
					return nil
				}
			}
			conds, err := filter.DecodeConditions([]byte(strings.TrimSpace(line)))
			if err != nil {
				log.Warn("ignoring invalid conditions", zap.Error(err))
				continue
			}
			if err := svc.Watch(ctx, conds, printResult); err != nil {
				return eris.Wrap(err, "watch")
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
