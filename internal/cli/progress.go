package cli

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type progressManager struct {
	p *mpb.Progress
}

func newProgressManager(w io.Writer) *progressManager {
	return &progressManager{p: mpb.New(
		mpb.WithWidth(40),
		mpb.WithOutput(w),
		mpb.WithRefreshRate(120*time.Millisecond),
	)}
}

func (pm *progressManager) Wait() { pm.p.Wait() }

// progressHandle is one byte-counting bar.
type progressHandle struct {
	bar   *mpb.Bar
	start time.Time
	bytes atomic.Int64
	note  atomic.Value
	done  atomic.Bool
}

func (pm *progressManager) register(name string) *progressHandle {
	h := &progressHandle{start: time.Now()}
	h.note.Store("")
	h.bar = pm.p.New(0,
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(decor.Name(name+"  ", decor.WCSyncSpaceR)),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncWidth),
			decor.Any(func(decor.Statistics) string {
				return " | " + humanize.Bytes(uint64(h.bytes.Load()))
			}),
			decor.Any(func(decor.Statistics) string {
				if note := h.note.Load().(string); note != "" {
					return " | " + note
				}
				return fmt.Sprintf(" | %ds", int(time.Since(h.start).Seconds()))
			}),
		),
	)
	return h
}

// update has the pipeline.ProgressFunc shape.
func (h *progressHandle) update(done, total int64) {
	if h.done.Load() {
		return
	}
	h.bytes.Store(done)
	if total > 0 {
		h.bar.SetTotal(total, false)
	}
	h.bar.SetCurrent(done)
}

func (h *progressHandle) finish(note string) {
	if h.done.Swap(true) {
		return
	}
	h.note.Store(note)
	cur := h.bar.Current()
	if cur <= 0 {
		cur = 1
	}
	h.bar.SetCurrent(cur)
	h.bar.SetTotal(cur, true)
}
