package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleText_ExtractsBodyText(t *testing.T) {
	page := `<html><body><h1>Order placed</h1><p>Thank you for your purchase.</p></body></html>`

	text, err := VisibleText(page)
	require.NoError(t, err)
	assert.Equal(t, "Order placed Thank you for your purchase.", text)
}

func TestVisibleText_SkipsNonVisibleContainers(t *testing.T) {
	page := `<html>
<head><title>Error in title is invisible</title></head>
<body>
  <script>throw new Error("scripted error");</script>
  <style>.error { color: red; }</style>
  <noscript>enable javascript error</noscript>
  <p>visible content</p>
</body>
</html>`

	text, err := VisibleText(page)
	require.NoError(t, err)
	assert.Equal(t, "visible content", text)
	assert.NotContains(t, text, "error")
}

func TestVisibleText_SkipsComments(t *testing.T) {
	page := `<html><body><!-- hidden error note --><p>hello</p></body></html>`

	text, err := VisibleText(page)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestVisibleText_CollapsesWhitespace(t *testing.T) {
	page := "<html><body><p>  a\n\n   b\t c  </p></body></html>"

	text, err := VisibleText(page)
	require.NoError(t, err)
	assert.Equal(t, "a b c", text)
}

func TestVisibleText_EmptyInput(t *testing.T) {
	text, err := VisibleText("")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}
