package asseturl

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
)

func TestOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/abc/url", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("thumb"))
		assert.Equal(t, "de", r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://cdn.example/abc_thumb.jpg"})
	}))
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dm.hcl", []byte(`
datamanager {
  url = "`+srv.URL+`/api/58b9a1f5"
}
`), 0o644))
	t.Setenv("DM_CONFIG", "")
	t.Setenv("DM_TOKEN", "")

	tests := []struct {
		name     string
		openErr  error
		wantWarn string
	}{
		{name: "opened"},
		{name: "no browser", openErr: errors.New("no display"), wantWarn: "Could not open browser: no display"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opened []string
			orig := openURL
			openURL = func(u string) error {
				opened = append(opened, u)
				return tt.openErr
			}
			t.Cleanup(func() { openURL = orig })

			ui := cli.NewMockUi()
			c := &Command{DataCommand: &base.DataCommand{Command: &base.Command{
				Log: hclog.NewNullLogger(),
				UI:  ui,
				Fs:  fs,
			}}}

			code := c.Run([]string{"-thumb", "-locale", "de", "-open", "abc"})
			require.Equal(t, 0, code, ui.ErrorWriter.String())
			assert.Equal(t, "https://cdn.example/abc_thumb.jpg\n", ui.OutputWriter.String())
			assert.Equal(t, []string{"https://cdn.example/abc_thumb.jpg"}, opened)
			if tt.wantWarn != "" {
				assert.Contains(t, ui.ErrorWriter.String(), tt.wantWarn)
			}
		})
	}
}
