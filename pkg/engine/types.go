package engine

// Wire types for the workflow engine's REST API. Only the fields the service
// reads or writes are modeled; everything else rides along in Parameters.

// Workflow is the engine's representation of a workflow.
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Active      bool           `json:"active,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
	VersionID   string         `json:"versionId,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// Node is one node inside a workflow definition.
type Node struct {
	ID          string                    `json:"id,omitempty"`
	Name        string                    `json:"name"`
	Type        string                    `json:"type"`
	TypeVersion float64                   `json:"typeVersion,omitempty"`
	Position    []float64                 `json:"position,omitempty"`
	Parameters  map[string]any            `json:"parameters,omitempty"`
	Credentials map[string]NodeCredential `json:"credentials,omitempty"`
	// WebhookID is assigned by the engine for trigger nodes. Its absence
	// leaves the trigger inert even though the workflow looks complete.
	WebhookID string `json:"webhookId,omitempty"`
}

// NodeCredential references a stored credential from a node.
type NodeCredential struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Credential is a stored credential in the engine. Data is write-only; the
// engine never returns secret material on reads.
type Credential struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// WebhookTriggerType is the node type of the inbound webhook trigger.
const WebhookTriggerType = "n8n-nodes-base.webhook"

// FindTriggerNode returns the workflow's webhook trigger node, or nil.
func (w *Workflow) FindTriggerNode() *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Type == WebhookTriggerType {
			return &w.Nodes[i]
		}
	}
	return nil
}

// SanitizeForUpdate strips server-assigned fields the engine rejects on
// write. Only name, nodes (a curated field subset per node), connections and
// settings survive; node ids, webhook identifiers, timestamps and version
// markers are dropped so the engine regenerates them.
func SanitizeForUpdate(w *Workflow) *Workflow {
	out := &Workflow{
		Name:        w.Name,
		Connections: w.Connections,
		Settings:    w.Settings,
		Nodes:       make([]Node, 0, len(w.Nodes)),
	}

	for _, n := range w.Nodes {
		out.Nodes = append(out.Nodes, Node{
			Name:        n.Name,
			Type:        n.Type,
			TypeVersion: n.TypeVersion,
			Position:    n.Position,
			Parameters:  scrubGeneratedIDs(n.Parameters),
			Credentials: n.Credentials,
		})
	}

	return out
}

// scrubGeneratedIDs removes engine-generated "id" keys nested inside
// parameter structures; the engine rejects them on update.
func scrubGeneratedIDs(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch vv := v.(type) {
		case map[string]any:
			nested := scrubGeneratedIDs(vv)
			delete(nested, "id")
			out[k] = nested
		case []any:
			cleaned := make([]any, 0, len(vv))
			for _, item := range vv {
				if m, ok := item.(map[string]any); ok {
					nested := scrubGeneratedIDs(m)
					delete(nested, "id")
					cleaned = append(cleaned, nested)
					continue
				}
				cleaned = append(cleaned, item)
			}
			out[k] = cleaned
		default:
			out[k] = v
		}
	}
	return out
}
