// Package docs registra a especificação OpenAPI da API no swag.
// swagger.json é servido em /docs pelo middleware gofiber/contrib/swagger.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var docTemplate string

// SwaggerInfo metadados da especificação.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "Emissor Fiscal API",
	Description:      "Emissão de NF-e (modelo 55) e NFC-e (modelo 65) para vendas do PDV.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
