package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrReplay is returned for envelopes that were already seen or carry a
// foreign nonce.
var ErrReplay = errors.New("bridge: replayed or foreign message")

// Envelope is the click message the page shim posts through the binding.
// It names a button only; the URL is always resolved on the Go side.
type Envelope struct {
	Nonce  string `json:"nonce"`
	Seq    int64  `json:"seq"`
	Button string `json:"button"`
}

// Guard admits each envelope at most once. Sequence numbers must increase
// strictly per execution context; the nonce ties messages to one session.
type Guard struct {
	nonce string
	mu    sync.Mutex
	last  map[int64]int64
}

// NewGuard returns a Guard with a fresh session nonce.
func NewGuard() *Guard {
	return &Guard{nonce: uuid.NewString(), last: map[int64]int64{}}
}

// Nonce is injected into the page shim.
func (g *Guard) Nonce() string { return g.nonce }

// Open decodes payload sent from execution context ctxID and checks it.
func (g *Guard) Open(ctxID int64, payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, fmt.Errorf("bridge: decode envelope: %w", err)
	}
	if env.Nonce != g.nonce || env.Button == "" {
		return Envelope{}, ErrReplay
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.last[ctxID]; ok && env.Seq <= prev {
		return Envelope{}, fmt.Errorf("%w: seq %d after %d", ErrReplay, env.Seq, prev)
	}
	g.last[ctxID] = env.Seq
	return env, nil
}

// Forget drops state for a destroyed execution context.
func (g *Guard) Forget(ctxID int64) {
	g.mu.Lock()
	delete(g.last, ctxID)
	g.mu.Unlock()
}
