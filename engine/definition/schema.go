package definition

import "github.com/invopop/jsonschema"

// Schema returns the JSON schema of actor.definition files, for authoring tools
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&File{})
}

// TemplateSchema returns the JSON schema of template files
func TemplateSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&TemplateFile{})
}
