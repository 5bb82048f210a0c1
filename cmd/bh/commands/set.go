package commands

import (
	"context"
	"errors"

	"bindharvest/pkg/app"
	"bindharvest/pkg/mets"
	"bindharvest/pkg/source"
	"bindharvest/pkg/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	setRoot    string
	setSubdir  string
	setType    string
	setWorkers int
	setNewOnly bool
	setRetries uint64
)

var setCmd = &cobra.Command{
	Use:   "set [set_id]",
	Short: "Harvest every binding in an OAI-PMH set",
	Long: `Enumerates the set and harvests each binding (METS + content files) with
a pool of parallel workers. Each worker holds its own source and storage
handles. Bindings that fail after retries are logged and skipped; the run
is idempotent, so re-running the same set resumes where it left off.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		set := types.SetID(args[0])

		ids, err := BH.Source.BindingIdentifiers(ctx, set)
		if err != nil {
			return err
		}

		if BH.Ledger != nil {
			fresh, err := BH.Ledger.MarkSeen(ctx, set, ids)
			if err != nil {
				return err
			}
			if setNewOnly {
				ids = fresh
			}
		} else if setNewOnly {
			return errors.New("--new-only requires ledger.enabled=true")
		}

		BH.Log.Info().Str("set", string(set)).Int("bindings", len(ids)).Int("workers", setWorkers).Msg("starting set harvest")

		jobs := make(chan types.DCIdentifier)
		g, gctx := errgroup.WithContext(ctx)

		for i := 0; i < setWorkers; i++ {
			g.Go(func() error {
				// 每个 worker 自带一套句柄，互相之间没有共享状态
				worker, err := app.New(gctx)
				if err != nil {
					return err
				}
				for dc := range jobs {
					if err := harvestWithRetry(gctx, worker, set, dc); err != nil {
						if gctx.Err() != nil {
							return err
						}
						// binding 级失败不拖垮整个集合，下次重跑会再试
						worker.Log.Error().Err(err).Str("binding", string(dc)).Msg("binding harvest failed, continuing with set")
					}
				}
				return nil
			})
		}

		g.Go(func() error {
			defer close(jobs)
			for _, dc := range ids {
				select {
				case jobs <- dc:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})

		return g.Wait()
	},
}

// harvestWithRetry 给单个 binding 套上指数退避重试。
// 传输类失败 (网络抖动、5xx、空 METS) 值得重试；
// 404/401 和歧义 manifest 重试也不会变好，直接放弃。
func harvestWithRetry(ctx context.Context, a *app.App, set types.SetID, dc types.DCIdentifier) error {
	op := func() error {
		_, err := harvestBinding(ctx, a, set, dc, setRoot, setSubdir, types.ParseFileType(setType))
		if err == nil {
			return nil
		}
		if errors.Is(err, mets.ErrAmbiguousLocation) {
			return backoff.Permanent(err)
		}
		if code := source.StatusCode(err); code == 404 || code == 401 {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), setRetries), ctx)
	return backoff.Retry(op, bo)
}

func init() {
	setCmd.Flags().StringVar(&setRoot, "root", "", "destination root inside the storage channel")
	setCmd.Flags().StringVar(&setSubdir, "subdir", "", "manifest subdirectory under the binding directory (default \"mets\")")
	setCmd.Flags().StringVar(&setType, "type", "alto", "file type to download (alto, image, ...)")
	setCmd.Flags().IntVar(&setWorkers, "workers", 4, "number of parallel harvest workers")
	setCmd.Flags().BoolVar(&setNewOnly, "new-only", false, "only harvest bindings not seen before (requires ledger)")
	setCmd.Flags().Uint64Var(&setRetries, "retries", 3, "retry attempts per binding for transient failures")
	rootCmd.AddCommand(setCmd)
}
