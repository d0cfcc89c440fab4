package agents

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Tool describes a function the remote service may call during an
// agent's turn. Execution happens remotely; this side only declares the
// contract.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ParameterSpec is the hand-built counterpart to schema reflection, for
// tools whose parameters are authored field by field.
type ParameterSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// BuildParameters assembles an object schema from individual parameter
// declarations. additionalProperties is always false so the remote side
// rejects stray arguments.
func BuildParameters(params []ParameterSpec) *jsonschema.Schema {
	properties := jsonschema.NewProperties()
	required := []string{}

	for _, param := range params {
		property := &jsonschema.Schema{
			Type:        param.Type,
			Description: param.Description,
		}
		for _, value := range param.Enum {
			property.Enum = append(property.Enum, value)
		}
		properties.Set(param.Name, property)
		if param.Required {
			required = append(required, param.Name)
		}
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// ReflectParameters derives a tool parameter schema from a Go struct
// type, mirroring how structured outputs derive their schemas.
func ReflectParameters[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}

	// The pointer dance recovers the static type even when T is an
	// interface, where reflect.TypeOf on a zero value returns nil.
	paramType := reflect.TypeOf((*T)(nil)).Elem()
	for paramType.Kind() == reflect.Ptr {
		paramType = paramType.Elem()
	}
	return reflector.ReflectFromType(paramType)
}
