package render

import (
	"context"
	"fmt"

	"github.com/gadgethost/bridge/internal/fetch"
	"github.com/gadgethost/bridge/internal/rewrite"
	"github.com/rs/zerolog/log"
)

// Renderer produces the final markup for a gadget: source is fetched
// through the caching driver, parsed, and run through the gadget chain.
type Renderer struct {
	driver *rewrite.Driver
	chain  rewrite.Chain[*rewrite.MarkupContent]
}

// NewRenderer creates a renderer over the caching driver and gadget chain.
func NewRenderer(driver *rewrite.Driver, chain rewrite.Chain[*rewrite.MarkupContent]) *Renderer {
	return &Renderer{driver: driver, chain: chain}
}

// Render fetches the gadget source and returns the rewritten markup. Stage
// failures, whether from the response chains or the gadget chain, degrade
// the output rather than failing the render and are reported back to the
// caller; only an unfetchable or unparseable gadget is an error.
func (r *Renderer) Render(ctx context.Context, gadgetURL, locale string, forceRefresh bool) ([]byte, []rewrite.StageFailure, error) {
	resp, failures, err := r.driver.Fetch(ctx, fetch.Request{
		URL:          gadgetURL,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		return nil, nil, err
	}

	content, err := rewrite.ParseMarkup(gadgetURL, locale, resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("rendering %s: %w", gadgetURL, err)
	}

	content, gadgetFailures := rewrite.Run(ctx, r.chain, content)
	failures = append(failures, gadgetFailures...)
	if len(failures) > 0 {
		log.Warn().
			Str("gadget", gadgetURL).
			Strs("stages", rewrite.FailureStages(failures)).
			Msg("gadget rendered with degraded output")
	}

	markup, err := content.Render()
	return markup, failures, err
}
