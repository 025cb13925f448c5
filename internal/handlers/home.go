package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HomeTemplate must be installed on the engine with SetHTMLTemplate.
var HomeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>slugcache</title>
  <style>
    body { font-family: system-ui; text-align: center; padding: 50px; }
    h1 { color: #333; }
    p { color: #666; }
    code { background: #f4f4f4; padding: 2px 6px; border-radius: 3px; }
  </style>
</head>
<body>
  <h1>slugcache</h1>
  <p>URL shortener service</p>
  <p>Domain: <code>{{.Domain}}</code></p>
</body>
</html>
`))

// Home renders the landing page for the bare domain.
func Home(domain string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "home", gin.H{"Domain": domain})
	}
}
