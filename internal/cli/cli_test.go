package cli

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapseek/internal/history"
)

// run executes the root command with a throwaway config and history.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SNAPSEEK_HISTORY_DB", filepath.Join(dir, "history.db"))
	flagConfig, flagDebug, flagDownloadDir = "", false, ""
	flagOutput, flagBase, flagFormat, flagReferer, flagWorkers = "", "", "png", "", 0
	flagJSON, flagYes = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "none.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHydrateCommand(t *testing.T) {
	in := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(in, []byte(`<html><body><img data-src="a.png" loading="lazy" width="10"></body></html>`), 0o644))

	out, err := run(t, "hydrate", in, "--base", "https://pics.example/board/")
	require.NoError(t, err)
	assert.Contains(t, out, `src="https://pics.example/board/a.png"`)
	assert.Contains(t, out, `loading="eager"`)
	assert.Contains(t, out, `data-forced-src="https://pics.example/board/a.png"`)
}

func TestDownloadCommand(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{0, 0xFF, 0, 0xFF})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	dl := t.TempDir()
	out, err := run(t, "--download-dir", dl, "download", "-f", "jpeg", uri)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 of 1 saved")

	files, err := filepath.Glob(filepath.Join(dl, "*.jpg"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDownloadCommandRejectsFormat(t *testing.T) {
	_, err := run(t, "download", "-f", "bmp", "https://x/a.png")
	assert.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(defaults)")
	assert.Contains(t, out, "pinterest: https://ru.pinterest.com/")
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil, nil)
	assert.Equal(t, "No downloads yet.\n", out.String())

	out.Reset()
	entries := []history.Entry{
		history.NewEntry("/d/kept.png", "https://x/kept", time.Now().Add(-2*time.Hour)),
		history.NewEntry("/d/gone.png", "https://x/gone", time.Now().Add(-3*time.Hour)),
	}
	printHistory(&out, entries, func(p string) bool { return p == "/d/kept.png" })
	lines := strings.Split(out.String(), "\n")
	assert.Contains(t, lines[0], "kept.png")
	assert.Contains(t, lines[0], "2 hours ago")
	assert.Contains(t, lines[2], "! gone.png")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "a.png", shortName("https://x/y/a.png"))
	assert.Equal(t, "data URI", shortName("data:image/png;base64,AAAA"))
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaa...", shortName("https://x/"+strings.Repeat("a", 40)))
}
