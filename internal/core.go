package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/render"
	"github.com/starford/notes/internal/search"
	"github.com/starford/notes/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// Core holds the components every entry point shares: storage, the note
// store and the renderer configured for the chosen highlight carrier.
type Core struct {
	Provider  storage.Provider
	Store     *notestore.Store
	Renderer  *render.Renderer
	Highlight []search.HighlightOption
}

// NewCore opens storage and builds the note store. Extra store options, such
// as mutation hooks, are appended to the defaults.
func NewCore(cfg *Config, logger *slog.Logger, opts ...notestore.Option) (*Core, error) {
	provider, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Dir, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var (
		renderOpts []render.Option
		highlight  []search.HighlightOption
	)
	if cfg.Search.Carrier == CarrierStrikethrough {
		renderOpts = append(renderOpts, render.WithStrikethroughAsHighlight())
		highlight = append(highlight, search.WithCarrier(search.CarrierStrikethrough))
	}
	renderer := render.New(renderOpts...)

	storeOpts := append([]notestore.Option{
		notestore.WithKey(cfg.Storage.Key),
		notestore.WithLogger(logger),
	}, opts...)

	return &Core{
		Provider:  provider,
		Store:     notestore.New(provider, codec.New(renderer), storeOpts...),
		Renderer:  renderer,
		Highlight: highlight,
	}, nil
}

// Results filters, orders and highlights the current notes.
func (c *Core) Results(ctx context.Context, query string) ([]search.Result, error) {
	all, err := c.Store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return search.Results(all, query, c.Renderer, c.Highlight...), nil
}

// BlobPath returns the file holding the notes when storage is file based.
func (c *Core) BlobPath() (string, bool) {
	fs, ok := c.Provider.(*storage.FS)
	if !ok {
		return "", false
	}
	p, err := fs.Path(c.Store.Key())
	if err != nil {
		return "", false
	}
	return p, true
}

// Close releases storage.
func (c *Core) Close() error {
	return c.Provider.Close()
}
