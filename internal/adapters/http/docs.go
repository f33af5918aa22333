package http

import (
	"bytes"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
)

// docsPage renders Swagger UI against the document served next to it.
const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>agrodemarc API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="docs"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: '/docs/openapi.yaml', dom_id: '#docs', deepLinking: true });
  </script>
</body>
</html>`

// openAPIDocument loads the YAML document once and keeps the bytes.
// A missing file is retried on the next request.
type openAPIDocument struct {
	path string
	mu   sync.Mutex
	data []byte
}

func (d *openAPIDocument) load() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data != nil {
		return d.data, nil
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, err
	}
	d.data = bytes.Clone(data)
	return d.data, nil
}

// SetupDocs serves Swagger UI at /docs and the OpenAPI document at
// /docs/openapi.yaml.
func SetupDocs(app *fiber.App, docPath string) {
	if docPath == "" {
		docPath = "api/openapi.yaml"
	}
	doc := &openAPIDocument{path: docPath}

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.SendString(docsPage)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		data, err := doc.load()
		if err != nil {
			return errNotFound(c, "openapi document not available")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(data)
	})
}
