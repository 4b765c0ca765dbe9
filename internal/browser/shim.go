package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// World is the isolated execution context the shim runs in; page scripts
// cannot see its globals or its binding.
const (
	World       = "snapseek"
	BindingName = "__snapseekClick"
	styleID     = "snapseek-style"
)

//go:embed shim.js
var shimSource string

type shimConfig struct {
	Binding string `json:"binding"`
	Nonce   string `json:"nonce"`
	StyleID string `json:"styleId"`
}

// Shim renders the page script for a session nonce.
func Shim(nonce string) string {
	cfg, _ := json.Marshal(shimConfig{Binding: BindingName, Nonce: nonce, StyleID: styleID})
	return strings.Replace(shimSource, "__SNAPSEEK_CONFIG__", string(cfg), 1)
}

// installShim registers the binding in the isolated world and arranges for
// the shim to run in that world on every new document.
func installShim(nonce string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(BindingName).WithExecutionContextName(World).Do(ctx); err != nil {
			return err
		}
		_, err := page.AddScriptToEvaluateOnNewDocument(Shim(nonce)).WithWorldName(World).Do(ctx)
		return err
	})
}
