package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope-hq/fieldscope/internal/core"
)

func TestTextPlain(t *testing.T) {
	out, err := Text([]byte("inspection checklist"), "text/plain", "checklist.txt")
	require.NoError(t, err)
	assert.Equal(t, "inspection checklist", out)
}

func TestTextPlainWithCharsetParam(t *testing.T) {
	out, err := Text([]byte("notes"), "text/plain; charset=utf-8", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes", out)
}

func TestTextJSON(t *testing.T) {
	raw := `{"pump":"P-104","status":"serviced"}`
	out, err := Text([]byte(raw), "application/json", "report.json")
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestTextCSV(t *testing.T) {
	out, err := Text([]byte("site,status\nA,ok"), "text/csv", "sites.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "site,status")
}

func TestTextHTMLStripsMarkup(t *testing.T) {
	raw := "<html><body><h1>Pump Manual</h1>\n<p>Check   the <b>intake</b> valve.</p></body></html>"
	out, err := Text([]byte(raw), "text/html", "manual.html")
	require.NoError(t, err)

	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, ">")
	assert.Equal(t, "Pump Manual Check the intake valve.", out)
}

func TestTextBinaryFallsBackToPlaceholder(t *testing.T) {
	// Garbage bytes that no PDF parser can read; the extractor must still
	// return non-empty labeled text instead of failing.
	out, err := Text([]byte{0x00, 0x01, 0x02}, "application/pdf", "service-manual.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Contains(t, out, "service-manual.pdf")
}

func TestTextUnsupportedMediaType(t *testing.T) {
	out, err := Text([]byte("PK..."), "application/zip", "archive.zip")
	require.Error(t, err)
	assert.Empty(t, out)

	var mte *core.MediaTypeError
	require.True(t, errors.As(err, &mte))
	assert.Equal(t, "application/zip", mte.MediaType)
}

func TestTextMediaTypeCaseInsensitive(t *testing.T) {
	out, err := Text([]byte("ok"), "TEXT/PLAIN", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
