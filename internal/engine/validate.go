package engine

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed payload.cue
var payloadSchemaSource string

// payloadValidator checks queued payloads against the embedded CUE
// schema before replay. Actions without a schema entry pass through -
// their payloads are fully opaque.
type payloadValidator struct {
	cctx    *cue.Context
	schemas cue.Value
}

func newPayloadValidator() *payloadValidator {
	cctx := cuecontext.New()
	schemas := cctx.CompileString(payloadSchemaSource)
	if err := schemas.Err(); err != nil {
		// The schema is embedded at build time; failing to compile it
		// is a programming error, not a runtime condition.
		panic(fmt.Sprintf("compile payload schema: %v", err))
	}
	return &payloadValidator{cctx: cctx, schemas: schemas}
}

// validate unifies the payload JSON with the schema for the action.
// JSON is valid CUE, so the payload compiles directly.
func (v *payloadValidator) validate(action Action, payload []byte) error {
	schema := v.schemas.LookupPath(cue.ParsePath(string(action)))
	if !schema.Exists() {
		return nil
	}

	if len(payload) == 0 {
		payload = []byte("{}")
	}
	val := v.cctx.CompileBytes(payload)
	if err := val.Err(); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("action %s: %w", action, err)
	}
	return nil
}
