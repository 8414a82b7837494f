package engine

import (
	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

// state is the closed set of engine states. Exactly one is live at a time
// and it is only replaced while the engine's write lock is held.
type state interface {
	datasource() *domain.Datasource
}

// builderState holds what is needed to connect. It owns no live resources.
type builderState struct {
	schema *domain.ValidatedSchema
	ds     *domain.Datasource
}

func (b *builderState) datasource() *domain.Datasource { return b.ds }

// connectedState is a live engine that can answer queries
type connectedState struct {
	schema      *domain.ValidatedSchema
	ds          *domain.Datasource
	querySchema *domain.QuerySchema
	executor    interfaces.QueryExecutor
}

func (c *connectedState) datasource() *domain.Datasource { return c.ds }

var (
	_ state = (*builderState)(nil)
	_ state = (*connectedState)(nil)
)
