package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snapseek/internal/bridge"
	"snapseek/internal/pipeline"
)

var (
	flagFormat  string
	flagReferer string
	flagWorkers int
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download <url>...",
		Short: "Download images and convert them without a browser",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDownload,
	}
	downloadCmd.Flags().StringVarP(&flagFormat, "format", "f", "png", "output format: png, jpg (jpeg) or gif")
	downloadCmd.Flags().StringVar(&flagReferer, "referer", "", "page the images were found on")
	downloadCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel downloads (default from config)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := bridge.ParseFormat(flagFormat); err != nil {
		return err
	}
	workers := cfg.Workers
	if flagWorkers > 0 {
		workers = flagWorkers
	}

	var hist pipeline.Appender
	if store, err := openHistory(cfg); err != nil {
		logger().Printf("DL history disabled: %v", err)
	} else {
		defer store.Close()
		hist = store
	}
	local := bridge.NewLocal(newPipeline(cfg, hist, nil), logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	pm := newProgressManager(out)
	start := time.Now()
	results := make([]bridge.Result, len(args))
	var failed atomic.Int32

	sem := make(chan struct{}, max(1, workers))
	var wg sync.WaitGroup
	for i, src := range args {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			h := pm.register(shortName(src))
			res := local.RequestDownload(pipeline.WithProgress(ctx, h.update), bridge.Request{
				SourceURL: src,
				Format:    flagFormat,
				Referer:   flagReferer,
			})
			results[i] = res
			if res.Success {
				h.finish("ok")
				return
			}
			failed.Add(1)
			h.finish("failed")
		}()
	}
	wg.Wait()
	pm.Wait()

	fmt.Fprintln(out)
	for i, res := range results {
		if res.Success {
			fmt.Fprintf(out, "saved  %s\n", res.Path)
			continue
		}
		fmt.Fprintf(out, "error  %s: %s\n", args[i], res.Error)
	}
	fmt.Fprintf(out, "\n%d of %d saved in %s\n", len(args)-int(failed.Load()), len(args), time.Since(start).Round(time.Millisecond))
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d download(s) failed", n)
	}
	return nil
}

// shortName is a bar label: the last path element of the URL, truncated.
func shortName(src string) string {
	name := path.Base(src)
	if strings.HasPrefix(src, "data:") {
		name = "data URI"
	}
	if len(name) > 28 {
		name = name[:25] + "..."
	}
	return name
}
