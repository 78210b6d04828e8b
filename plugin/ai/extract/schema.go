package extract

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/hrygo/autotask/store"
)

var (
	schemaOnce sync.Once
	schemaHint string
)

// SchemaHint returns the JSON schema of the expected answer, for use in
// prompts.
func SchemaHint() string {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		}
		s := r.Reflect(&store.TaskRecord{})
		s.Version = ""
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			schemaHint = `{"type":"object","required":["task_title"]}`
			return
		}
		schemaHint = string(b)
	})
	return schemaHint
}
