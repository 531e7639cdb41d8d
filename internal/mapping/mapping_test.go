package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern_Placeholders(t *testing.T) {
	tests := []struct {
		raw  string
		want []Segment
	}{
		{"Device.Uptime", []Segment{Literal("Device"), Literal("Uptime")}},
		{"Device.IP.{i}.Enable", []Segment{Literal("Device"), Literal("IP"), Wildcard(), Literal("Enable")}},
		{"Device.<VENDOR>.Mode", []Segment{Literal("Device"), Wildcard(), Literal("Mode")}},
		{"Device.*.Mode", []Segment{Literal("Device"), Wildcard(), Literal("Mode")}},
		// Placeholders only count as whole segments.
		{"Device.X{i}.Mode", []Segment{Literal("Device"), Literal("X{i}"), Literal("Mode")}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := ParsePattern(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Segments())
			assert.Equal(t, tt.raw, p.String())
		})
	}
}

func TestParsePattern_Normalized(t *testing.T) {
	a := MustParsePattern("InternetGatewayDevice.WANDevice.{i}.<VENDOR>.X")
	b := MustParsePattern("InternetGatewayDevice.WANDevice.<VENDOR>.{i}.X")
	assert.Equal(t, "InternetGatewayDevice.WANDevice.*.*.X", a.Normalized())
	assert.Equal(t, a.Normalized(), b.Normalized())
	assert.Equal(t, a.Segments(), b.Segments())
}

func TestParsePattern_Invalid(t *testing.T) {
	for _, raw := range []string{"", "  ", "Device..Uptime", ".Device", "Device."} {
		_, err := ParsePattern(raw)
		assert.Error(t, err, "pattern %q", raw)
	}
}

func TestPattern_SegmentsIsACopy(t *testing.T) {
	p := MustParsePattern("a.b")
	segs := p.Segments()
	segs[0] = Wildcard()
	assert.Equal(t, Literal("a"), p.Segments()[0])
}

func TestNew(t *testing.T) {
	d, err := New(
		Pair{Pattern: "Device.DeviceInfo.SerialNumber", Name: "serial"},
		Pair{Pattern: "Device.IP.Interface.{i}.IPv4Address.{i}.IPAddress", Name: "ip"},
		Pair{Pattern: "InternetGatewayDevice.LANDevice.{i}.LANHostConfigManagement.IPInterface.{i}.IPInterfaceIPAddress", Name: "ip"},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []string{"serial", "ip"}, d.Names())

	var got []string
	for e := range d.All() {
		got = append(got, e.Pattern.String())
	}
	assert.Equal(t, []string{
		"Device.DeviceInfo.SerialNumber",
		"Device.IP.Interface.{i}.IPv4Address.{i}.IPAddress",
		"InternetGatewayDevice.LANDevice.{i}.LANHostConfigManagement.IPInterface.{i}.IPInterfaceIPAddress",
	}, got)
}

func TestNew_EmptyIsAllowed(t *testing.T) {
	d, err := New()
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())

	var zero Dictionary
	assert.Equal(t, 0, zero.Len())
	var nilDict *Dictionary
	assert.Equal(t, 0, nilDict.Len())
	assert.Nil(t, nilDict.Names())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		pairs []Pair
	}{
		{"empty pattern", []Pair{{Pattern: "", Name: "x"}}},
		{"empty segment", []Pair{{Pattern: "a..b", Name: "x"}}},
		{"empty name", []Pair{{Pattern: "a.b", Name: " "}}},
		{"duplicate pattern", []Pair{{Pattern: "a.b", Name: "x"}, {Pattern: "a.b", Name: "y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.pairs...)
			assert.Error(t, err)
		})
	}
}

func TestParse_JSONKeepsOrder(t *testing.T) {
	in := `{
	"Device.DeviceInfo.SoftwareVersion": "firmware",
	"Device.DeviceInfo.Manufacturer": "manufacturer",
	"Device.WiFi.SSID.{i}.SSID": "ssid"
}`
	d, err := Parse("mapping.json", []byte(in), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"firmware", "manufacturer", "ssid"}, d.Names())
}

func TestParse_YAMLKeepsOrder(t *testing.T) {
	in := `
# TR-181
Device.DeviceInfo.SoftwareVersion: firmware
Device.DeviceInfo.Manufacturer: manufacturer
"Device.WiFi.SSID.{i}.SSID": ssid
Device.WiFi.Radio.<VENDOR>.Channel: "channel"
`
	d, err := Parse("mapping.yaml", []byte(in), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"firmware", "manufacturer", "ssid", "channel"}, d.Names())
}

func TestParse_AutoDetect(t *testing.T) {
	d, err := Parse("inline", []byte(` {"a.b": "x"}`), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	d, err = Parse("inline", []byte("a.b: x\n"), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		format Format
		code   string
	}{
		{"empty", "", FormatJSON, "MAPPING_EMPTY"},
		{"blank", " \n\t", FormatYAML, "MAPPING_EMPTY"},
		{"empty object", "{}", FormatJSON, "MAPPING_EMPTY"},
		{"comments only", "# nothing\n", FormatYAML, "MAPPING_EMPTY"},
		{"json array", `["a.b"]`, FormatJSON, "MAPPING_PARSE_ERROR"},
		{"json syntax", `{"a.b": }`, FormatJSON, "MAPPING_PARSE_ERROR"},
		{"json non-string name", `{"a.b": 1}`, FormatJSON, "MAPPING_PARSE_ERROR"},
		{"json nested", `{"a.b": {"c": "d"}}`, FormatJSON, "MAPPING_PARSE_ERROR"},
		{"json duplicate", `{"a.b": "x", "a.b": "y"}`, FormatJSON, "MAPPING_PARSE_ERROR"},
		{"yaml sequence", "- a.b\n", FormatYAML, "MAPPING_PARSE_ERROR"},
		{"yaml non-string name", "a.b: 12\n", FormatYAML, "MAPPING_PARSE_ERROR"},
		{"yaml duplicate", "a.b: x\na.b: y\n", FormatYAML, "MAPPING_PARSE_ERROR"},
		{"yaml multi document", "a.b: x\n---\nc.d: y\n", FormatYAML, "MAPPING_PARSE_ERROR"},
		{"empty segment", `{"a..b": "x"}`, FormatJSON, "MAPPING_VALIDATE_ERROR"},
		{"empty name", `{"a.b": ""}`, FormatJSON, "MAPPING_VALIDATE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test", []byte(tt.in), tt.format)
			var le *LoadError
			require.True(t, errors.As(err, &le), "want *LoadError, got %T: %v", err, err)
			assert.Equal(t, tt.code, le.AppError.Code)
			assert.Equal(t, "load_mapping", le.AppError.Stage)
			assert.Equal(t, "test", le.AppError.Source)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"Device.Uptime": "uptime"}`), 0o644))
	d, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"uptime"}, d.Names())

	ymlPath := filepath.Join(dir, "mapping.yml")
	require.NoError(t, os.WriteFile(ymlPath, []byte("Device.Uptime: uptime\n"), 0o644))
	d, err = Load(ymlPath)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	_, err = Load(filepath.Join(dir, "missing.json"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "MAPPING_READ_ERROR", le.AppError.Code)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("/etc/gw/Mapping.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("m.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("m.yml"))
	assert.Equal(t, FormatAuto, FormatFromPath("mapping"))
}
