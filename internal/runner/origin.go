package runner

import (
	"github.com/bombadil/exerciser/internal/common/urlutil"
	"github.com/bombadil/exerciser/pkg/tree"
	"github.com/bombadil/exerciser/pkg/types"
)

// withinOrigin reports whether currentURL's host[:port] is exactly the
// configured origin host[:port] (spec.md §8 property 8).
func withinOrigin(originHost, currentURL string) bool {
	if originHost == "" {
		return true
	}
	return urlutil.ExtractHost(currentURL) == originHost
}

// filterToBackOnly rewrites an action tree so every leaf becomes Back,
// per spec.md §4.5: "if state.url not within origin: actions =
// actions.filter(== Back)". Rather than a true filter (which could
// leave the tree legitimately empty even though a Back is always
// safe to offer), every leaf is replaced with a Back action so the
// runner always has an escape route back into the allowed origin.
func filterToBackOnly(t tree.Tree[types.BrowserAction]) tree.Tree[types.BrowserAction] {
	return tree.Map(t, func(a types.BrowserAction) types.BrowserAction {
		if a.Kind == types.ActionBack {
			return a
		}
		return types.BrowserAction{Kind: types.ActionBack}
	})
}
