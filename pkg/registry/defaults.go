package registry

import (
	"github.com/probeflow/probeflow/pkg/httpclient"
	"github.com/probeflow/probeflow/pkg/models"
	assertionnode "github.com/probeflow/probeflow/pkg/nodes/assertion"
	"github.com/probeflow/probeflow/pkg/nodes/condition"
	"github.com/probeflow/probeflow/pkg/nodes/delay"
	"github.com/probeflow/probeflow/pkg/nodes/httprequest"
	"github.com/probeflow/probeflow/pkg/nodes/merge"
)

// RegisterDefaultNodes registers every built-in node kind. fileRoot confines
// path-based upload sources of http-request nodes.
func (r *Registry) RegisterDefaultNodes(dispatcher httpclient.Dispatcher, fileRoot string) {
	r.RegisterExecutor(httprequest.NewFactory(dispatcher, fileRoot))
	r.RegisterExecutor(delay.NewFactory())
	r.RegisterExecutor(assertionnode.NewFactory())
	r.RegisterExecutor(condition.NewFactory())

	// Structural kinds have no executor. Merge synchronization is driven by
	// the walker; start and end only shape the graph.
	r.RegisterSchema(models.NodeKindMerge, merge.Schema())
	r.RegisterSchema(models.NodeKindStart, nil)
	r.RegisterSchema(models.NodeKindEnd, nil)
}
