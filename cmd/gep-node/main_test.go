package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/gep/asset"
	"xdao.co/gep/config"
)

type hub struct {
	mu   sync.Mutex
	seen []map[string]any
}

func (h *hub) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
	record := func(r *http.Request) map[string]any {
		var env map[string]any
		_ = json.NewDecoder(r.Body).Decode(&env)
		h.mu.Lock()
		h.seen = append(h.seen, env)
		h.mu.Unlock()
		payload, _ := env["payload"].(map[string]any)
		return payload
	}
	mux.HandleFunc("/a2a/hello", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		reply(w, `{"node_id":"node_abc","credits":500}`)
	})
	mux.HandleFunc("/a2a/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		reply(w, `{"status":"ok","credits":510}`)
	})
	mux.HandleFunc("/a2a/fetch", func(w http.ResponseWriter, r *http.Request) {
		if p := record(r); p["include_tasks"] == true {
			reply(w, `{"tasks":[{"task_id":"t1","title":"write a chapter","reward":40}]}`)
			return
		}
		reply(w, `{"assets":[]}`)
	})
	for _, p := range []string{"/a2a/publish", "/a2a/task/claim", "/a2a/task/complete"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			record(r)
			reply(w, `{"status":"ok"}`)
		})
	}
	mux.HandleFunc("/a2a/directory", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"agents":[{"node_id":"node_xyz"}]}`)
	})
	return mux
}

func (h *hub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, env := range h.seen {
		out = append(out, env["message_type"].(string))
	}
	return out
}

func startHub(t *testing.T) (*hub, string) {
	t.Helper()
	for _, k := range []string{config.EnvHubURL, config.EnvNodeID, config.EnvReferrer, config.EnvTransport, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	h := &hub{}
	srv := httptest.NewServer(h.handler())
	t.Cleanup(srv.Close)
	return h, srv.URL
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func commonArgs(t *testing.T, hubURL string) []string {
	return []string{"--hub", hubURL, "--env", filepath.Join(t.TempDir(), "none.env"), "--state-dir", t.TempDir()}
}

func TestUsage(t *testing.T) {
	code, _, errOut := runCmd(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, errOut = runCmd(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "unknown command: bogus")

	code, out, _ := runCmd(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "gep-node publish")
}

func TestAssetIDAndCID(t *testing.T) {
	gene := asset.NovelGene("都市", []string{"职场", "甜宠"}, "生活流")
	b, err := gene.MarshalJSON()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "gene.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	code, out, errOut := runCmd(t, "asset-id", path)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "7c463e2d793b053392615f91ede6ecdd40874c2b0accd0ac5327089e8506e836\n", out)

	code, out, errOut = runCmd(t, "asset-cid", path)
	require.Equal(t, 0, code, errOut)
	c, err := asset.CID("7c463e2d793b053392615f91ede6ecdd40874c2b0accd0ac5327089e8506e836")
	require.NoError(t, err)
	assert.Equal(t, c.String()+"\n", out)

	code, _, _ = runCmd(t, "asset-id")
	assert.Equal(t, 2, code)
}

func TestHelloAndHeartbeat(t *testing.T) {
	h, url := startHub(t)

	code, out, errOut := runCmd(t, append([]string{"hello"}, commonArgs(t, url)...)...)
	require.Equal(t, 0, code, errOut)
	var st statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "node_abc", st.NodeID)
	assert.Equal(t, "active", st.State)
	assert.Equal(t, int64(500), st.Credits)

	code, out, errOut = runCmd(t, append([]string{"heartbeat"}, commonArgs(t, url)...)...)
	require.Equal(t, 0, code, errOut)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, int64(510), st.Credits)
	assert.Equal(t, []string{"hello", "hello", "heartbeat"}, h.types())
}

func TestProfileRemembersNodeID(t *testing.T) {
	h, url := startHub(t)
	stateDir := t.TempDir()
	args := []string{"--hub", url, "--env", filepath.Join(t.TempDir(), "none.env"), "--state-dir", stateDir}

	code, _, errOut := runCmd(t, append([]string{"hello"}, args...)...)
	require.Equal(t, 0, code, errOut)
	code, _, errOut = runCmd(t, append([]string{"hello"}, args...)...)
	require.Equal(t, 0, code, errOut)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.seen, 2)
	_, first := h.seen[0]["sender_id"]
	assert.False(t, first, "first hello has no id to offer")
	assert.Equal(t, "node_abc", h.seen[1]["sender_id"], "second hello reuses the remembered id")
}

func TestPublishClaimComplete(t *testing.T) {
	h, url := startHub(t)
	cfgPath := filepath.Join(t.TempDir(), "gep.yaml")
	archiveDir := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
archive:
  backends:
    - name: local
      type: localfs
      dir: `+archiveDir+`
`), 0o600))
	flags := append(commonArgs(t, url), "--config", cfgPath)

	code, out, errOut := runCmd(t, append([]string{"publish", "--genre", "都市", "--element", "职场", "--element", "甜宠", "--structure", "生活流", "--template", "tpl"}, flags...)...)
	require.Equal(t, 0, code, errOut)
	var ids map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, "7c463e2d793b053392615f91ede6ecdd40874c2b0accd0ac5327089e8506e836", ids["gene"])

	code, out, errOut = runCmd(t, append([]string{"tasks"}, flags...)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"task_id": "t1"`)

	code, _, errOut = runCmd(t, append([]string{"complete", "--task", "t1", "--asset", strings.Repeat("0", 64)}, flags...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not been published")

	code, out, errOut = runCmd(t, append([]string{"complete", "--task", "t1", "--asset", ids["capsule"]}, flags...)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"state": "completed"`)

	types := h.types()
	assert.Contains(t, types, "publish")
	assert.Equal(t, "task_complete", types[len(types)-1])

	code, out, errOut = runCmd(t, append([]string{"archive", "get"}, append(flags, ids["event"])...)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"asset_type": "EvolutionEvent"`)

	bundle := filepath.Join(t.TempDir(), "bundle.tar")
	code, _, errOut = runCmd(t, append([]string{"archive", "export", "--out", bundle}, append(flags, ids["gene"], ids["capsule"])...)...)
	require.Equal(t, 0, code, errOut)
	code, out, errOut = runCmd(t, append([]string{"archive", "import", bundle}, commonArgs(t, url)...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestDirectory(t *testing.T) {
	_, url := startHub(t)
	code, out, errOut := runCmd(t, append([]string{"directory"}, commonArgs(t, url)...)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "node_xyz")
}

func TestHelloRejected(t *testing.T) {
	_, url := startHub(t)
	code, _, errOut := runCmd(t, append([]string{"hello"}, commonArgs(t, url+"/missing-prefix")...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "hello")
}
