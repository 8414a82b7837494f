package schema

import (
	"context"
	"time"

	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/infrastructure/cache"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/parser"
)

// DefaultDMMFTTL is how long rendered documents stay cached
const DefaultDMMFTTL = 10 * time.Minute

var log = logger.New("schema")

// Renderer renders DMMF documents from schema text, caching results by
// schema hash.
type Renderer struct {
	cache interfaces.Cache
	ttl   time.Duration
}

// NewRenderer creates a Renderer. A nil cache disables caching.
func NewRenderer(c interfaces.Cache, ttl time.Duration) *Renderer {
	if ttl <= 0 {
		ttl = DefaultDMMFTTL
	}
	return &Renderer{cache: c, ttl: ttl}
}

// Render parses and validates raw and returns its DMMF document. Invalid
// schemas fail with a *domain.DiagnosticsError.
func (r *Renderer) Render(ctx context.Context, raw string) ([]byte, error) {
	key := cache.Key("dmmf", []byte(raw))
	if r.cache != nil {
		if doc, ok := r.cache.Get(ctx, key); ok {
			log.Debugf("dmmf cache hit %s", key)
			return doc, nil
		}
	}

	validated, diags := parser.ParseSchema(raw)
	if err := diags.Err(); err != nil {
		return nil, err
	}
	doc, err := RenderDMMF(validated)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, doc, r.ttl)
	}
	return doc, nil
}
