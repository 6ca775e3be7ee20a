package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleText(t *testing.T) {
	page := `<html><head><title>Paper</title><style>p{color:red}</style>
<script>var x = "hidden";</script></head>
<body>
  <h1>Abstract</h1>
  <p>First   sentence
     continues.</p>
  <noscript>Enable JavaScript</noscript>
  <p>a<b>b</b>c</p>
</body></html>`

	assert.Equal(t, "Paper\nAbstract\nFirst sentence continues.\na\nb\nc", VisibleText(page))
}

func TestVisibleText_Empty(t *testing.T) {
	assert.Equal(t, "", VisibleText(""))
	assert.Equal(t, "", VisibleText("<script>only()</script>"))
}

func TestVisibleText_LengthCountsText(t *testing.T) {
	body := strings.Repeat("x", 600)
	text := VisibleText("<html><body><div>" + body + "</div><script>" + strings.Repeat("y", 900) + "</script></body></html>")
	assert.Equal(t, 600, len(text))
}
