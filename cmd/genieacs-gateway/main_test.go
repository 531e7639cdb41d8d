package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeriveHealthzURL_FromListenAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:8000", "http://127.0.0.1:8000/healthz"},
		{"0.0.0.0:8000", "http://127.0.0.1:8000/healthz"},
		{":8000", "http://127.0.0.1:8000/healthz"},
		{"[::]:8000", "http://127.0.0.1:8000/healthz"},
		{"8000", "http://127.0.0.1:8000/healthz"},
		{"http://127.0.0.1:8000", "http://127.0.0.1:8000/healthz"},
	}
	for _, tt := range tests {
		got, err := deriveHealthzURL(tt.in)
		if err != nil {
			t.Fatalf("deriveHealthzURL(%q) unexpected err: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("deriveHealthzURL(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "no-port", "http://"} {
		if _, err := deriveHealthzURL(bad); err == nil {
			t.Fatalf("deriveHealthzURL(%q) expected error", bad)
		}
	}
}

func TestRunHealthcheck_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	defer ts.Close()

	if err := runHealthcheck(ts.URL+"/healthz", 200*time.Millisecond); err != nil {
		t.Fatalf("runHealthcheck unexpected err: %v", err)
	}
}

func TestRunHealthcheck_StatusNotOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := runHealthcheck(ts.URL, 200*time.Millisecond)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Fatalf("err=%q, want contains %q", err.Error(), "unexpected status")
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, ln, time.Second, zap.NewNop()) }()

	require.NoError(t, runHealthcheck("http://"+ln.Addr().String()+"/healthz", time.Second))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

const extractMapping = `{
  "InternetGatewayDevice.DeviceInfo.SoftwareVersion": "firmware",
  "InternetGatewayDevice.LANDevice.{i}.WLANConfiguration.{i}.SSID": "ssid"
}`

const extractDevice = `{"_id":"dev1","InternetGatewayDevice":{` +
	`"DeviceInfo":{"SoftwareVersion":{"_value":"V1.2"}},` +
	`"LANDevice":{"1":{"WLANConfiguration":{"1":{"SSID":{"_value":"home"}},"2":{"SSID":{"_value":"guest"}}}}}}}`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"GENIEACS_URL", "MAPPING_FILE", "REQUEST_TIMEOUT", "LOG_LEVEL", "LISTEN_ADDR"} {
		t.Setenv(k, "")
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestExtractCmd(t *testing.T) {
	mappingFile := writeTemp(t, "mapping.json", extractMapping)

	out, err := runCLI(t, "["+extractDevice+"]", "extract", "--mapping", mappingFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"firmware":"V1.2","ssid":["home","guest"]}`, out)

	deviceFile := writeTemp(t, "device.json", extractDevice)
	out, err = runCLI(t, "", "extract", "-m", mappingFile, deviceFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"firmware":"V1.2","ssid":["home","guest"]}`, out)
}

func TestExtractCmd_Explain(t *testing.T) {
	mappingFile := writeTemp(t, "mapping.json", extractMapping)

	out, err := runCLI(t, extractDevice, "extract", "--explain", "--mapping", mappingFile, "-")
	require.NoError(t, err)

	var lines []struct {
		Name, Pattern, Path string
		Value               any
	}
	require.NoError(t, json.Unmarshal([]byte(out), &lines), out)
	require.Len(t, lines, 3)
	assert.Equal(t, "firmware", lines[0].Name)
	assert.Equal(t, "InternetGatewayDevice.DeviceInfo.SoftwareVersion", lines[0].Path)
	assert.Equal(t, "InternetGatewayDevice.LANDevice.1.WLANConfiguration.2.SSID", lines[2].Path)
	assert.Equal(t, "guest", lines[2].Value)
}

func TestExtractCmd_Errors(t *testing.T) {
	mappingFile := writeTemp(t, "mapping.json", extractMapping)

	_, err := runCLI(t, "[]", "extract", "--mapping", mappingFile)
	assert.ErrorContains(t, err, "empty")

	_, err = runCLI(t, `"device"`, "extract", "--mapping", mappingFile)
	assert.Error(t, err)

	_, err = runCLI(t, extractDevice, "extract", "--mapping", writeTemp(t, "empty.json", "{}"))
	assert.Error(t, err)
}

func TestServeCmd_MappingLoadIsFatal(t *testing.T) {
	_, err := runCLI(t, "", "serve",
		"--listen", "127.0.0.1:0",
		"--mapping", filepath.Join(t.TempDir(), "missing.json"),
		"--log-level", "error")
	require.Error(t, err)
}
