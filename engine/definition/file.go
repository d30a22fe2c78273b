package definition

// AttributeFile is the authored form of an attribute
type AttributeFile struct {
	Default     interface{} `json:"default"`
	Type        string      `json:"type,omitempty" jsonschema:"enum=BOOL,enum=INT,enum=FLOAT,enum=STRING,enum=TIMER"`
	Notify      *bool       `json:"notify,omitempty"`
	InitialOnly bool        `json:"initial_only"`
	IgnoreOwner bool        `json:"ignore_owner"`
}

// RPCFile is the authored form of an RPC
type RPCFile struct {
	Arguments map[string]string `json:"arguments"`
	Target    string            `json:"target" jsonschema:"enum=SERVER,enum=CLIENT"`
	Reliable  bool              `json:"reliable"`
	Simulated bool              `json:"simulated"`
}

// File is the authored form of actor.definition
type File struct {
	Attributes      map[string]AttributeFile `json:"attributes"`
	RPCCalls        map[string]RPCFile       `json:"rpc_calls"`
	Templates       []string                 `json:"templates,omitempty"`
	Defaults        map[string]interface{}   `json:"defaults,omitempty"`
	States          map[string][]bool        `json:"states"`
	SimulatedStates []bool                   `json:"simulated_states"`
	RemoteRole      string                   `json:"remote_role"`
}

// TemplateFile is the authored form of a template
type TemplateFile struct {
	Bases      []string                 `json:"bases,omitempty"`
	Attributes map[string]AttributeFile `json:"attributes"`
	RPCCalls   map[string]RPCFile       `json:"rpc_calls"`
	Defaults   map[string]interface{}   `json:"defaults,omitempty"`
}
