package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectTracking(t *testing.T) {
	urls := TrackingURLs{BaseURL: "https://otto.ec/"}
	doc := `<html><body>
<a href="https://diario.ec/nota?id=1&amp;x=2">nota</a>
<a href="mailto:info@otto.ec">correo</a>
<a href="#top">arriba</a>
<a href="https://otto.ec/api/subscribers/unsubscribe/abc">baja</a>
</body></html>`

	out, err := InjectTracking(doc, urls, "t1", "https://otto.ec/api/subscribers/unsubscribe/")
	require.NoError(t, err)

	assert.Contains(t, out, `href="https://otto.ec/api/track/click/t1?url=https%3A%2F%2Fdiario.ec%2Fnota%3Fid%3D1%26x%3D2"`)
	assert.Contains(t, out, `href="mailto:info@otto.ec"`)
	assert.Contains(t, out, `href="#top"`)
	assert.Contains(t, out, `href="https://otto.ec/api/subscribers/unsubscribe/abc"`)
	assert.Contains(t, out, `<img src="https://otto.ec/api/track/open/t1" width="1" height="1" alt="" style="display:none"/></body>`)
}

func TestInjectTrackingFragment(t *testing.T) {
	out, err := InjectTracking(`<p><a href="HTTP://EXAMPLE.COM">x</a></p>`, TrackingURLs{BaseURL: "https://otto.ec"}, "t2")
	require.NoError(t, err)
	assert.Contains(t, out, "/api/track/click/t2?url=HTTP%3A%2F%2FEXAMPLE.COM")
	assert.Contains(t, out, "/api/track/open/t2")
}
