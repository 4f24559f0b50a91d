package socfeed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCEF(t *testing.T) {
	record := "<134>Oct 17 10:00:00 fw01 CEF:0|Acme|Firewall|3.2|100|Port scan|7|src=10.0.0.9 dst=10.0.0.1 act=blocked msg=\n"

	ev, err := ParseCEF(record)
	require.NoError(t, err)
	assert.Equal(t, "0", ev["cef_version"])
	assert.Equal(t, "Acme", ev["device_vendor"])
	assert.Equal(t, "Firewall", ev["device_product"])
	assert.Equal(t, "3.2", ev["device_version"])
	assert.Equal(t, "100", ev["signature_id"])
	assert.Equal(t, "Port scan", ev["name"])
	assert.Equal(t, "7", ev["severity"])
	assert.Equal(t, "10.0.0.9", ev["src"])
	assert.Equal(t, "blocked", ev["act"])
	assert.Equal(t, "", ev["msg"])
}

func TestParseCEF_ExtensionOverridesHeader(t *testing.T) {
	ev, err := ParseCEF("CEF:1|v|p|1|sig|n|3|name=override")
	require.NoError(t, err)
	assert.Equal(t, "1", ev["cef_version"])
	assert.Equal(t, "override", ev["name"])
}

func TestParseCEF_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{"too few fields", "CEF:0|Acme|Firewall|3.2|100|Port scan|7"},
		{"too many fields", "CEF:0|a|b|c|d|e|f|g|h"},
		{"no version", "LEEF:0|a|b|c|d|e|f|src=1"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCEF(tt.record)
			assert.True(t, errors.Is(err, ErrInvalidCEF), "got %v", err)
		})
	}
}
