// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// AssetKind distinguishes style and script dependencies.
type AssetKind int

const (
	AssetStyle = AssetKind(iota)
	AssetScript
)

func (k AssetKind) String() string {
	if k == AssetStyle {
		return "style"
	}
	return "script"
}

// AssetDescriptor names one declared dependency. Immutable for the
// lifetime of one loading phase.
type AssetDescriptor struct {
	URL  string
	Kind AssetKind
}

// AssetLoader drives concurrent download of declared dependencies with a
// shared deadline. It is a pure orchestration layer; the actual fetching
// and document injection is the Renderer's load contract.
type AssetLoader struct {
	renderer Renderer
}

// NewAssetLoader returns an AssetLoader delegating to the given Renderer.
func NewAssetLoader(r Renderer) *AssetLoader {
	return &AssetLoader{renderer: r}
}

// LoadAll launches all downloads concurrently, each against a shared
// deadline counted from phase start. The first failing or timed-out asset
// aborts the phase and LoadAll reports that single error; it does not
// wait for or report other in-flight failures. The phase succeeds only
// once every asset has completed.
func (l *AssetLoader) LoadAll(ctx context.Context, assets []AssetDescriptor, timeout time.Duration) error {
	if len(assets) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultAssetTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			if err := l.renderer.Load(ctx, asset); err != nil {
				return errors.Wrapf(AssetLoadError{URL: asset.URL}, "%v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// assetUnion returns the ordered descriptor sequence for one loading
// phase: style assets first, then scripts.
func assetUnion(css, js []string) (assets []AssetDescriptor) {
	for _, url := range css {
		assets = append(assets, AssetDescriptor{URL: url, Kind: AssetStyle})
	}
	for _, url := range js {
		assets = append(assets, AssetDescriptor{URL: url, Kind: AssetScript})
	}
	return
}
