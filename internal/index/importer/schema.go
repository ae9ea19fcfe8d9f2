package importer

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const priceIndexSchemaPath = "schemas/price_index_response.json"

func compilePriceIndexSchema() (*jsonschema.Schema, error) {
	file, err := schemaFS.Open(priceIndexSchemaPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(priceIndexSchemaPath, file); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(priceIndexSchemaPath)
}

func validateDocument(schema *jsonschema.Schema, body []byte) error {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("response body is not valid json: %w", err)
	}
	return schema.Validate(v)
}
