package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/printing"
	"github.com/roach88/offpos/internal/testutil"
)

const testConfig = `device:
  id: till-1
  staff: linh
printing:
  kind: none
`

// cliFixture runs commands against one database file, one in-memory
// backend and one recording printer.
type cliFixture struct {
	t       *testing.T
	opts    *RootOptions
	api     *backend.Memory
	printer *printing.Recorder
	clock   *testutil.FixedClock
	cfgPath string
	dbPath  string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "offpos.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))

	f := &cliFixture{
		t:       t,
		api:     backend.NewMemory(),
		printer: &printing.Recorder{},
		clock:   testutil.NewFixedClock(testutil.Epoch),
		cfgPath: cfgPath,
		dbPath:  filepath.Join(dir, "pos.db"),
	}
	f.opts = &RootOptions{
		API:     f.api,
		Printer: f.printer,
		IDs:     testutil.NewSeqIDs("ord"),
		Now:     f.clock.Now,
	}
	return f
}

func (f *cliFixture) runCtx(ctx context.Context, args ...string) (string, error) {
	f.t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newRootCommand(f.opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", f.cfgPath, "--db", f.dbPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	return f.runCtx(context.Background(), args...)
}

// mustRun runs a command that must succeed.
func (f *cliFixture) mustRun(args ...string) string {
	f.t.Helper()
	out, err := f.run(args...)
	require.NoError(f.t, err, out)
	return out
}

// runJSON runs with --format json and decodes the envelope, and the data
// into v when v is non-nil.
func (f *cliFixture) runJSON(v any, args ...string) (CLIResponse, error) {
	f.t.Helper()
	out, err := f.run(append(args, "--format", "json")...)

	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(f.t, json.NewDecoder(bytes.NewBufferString(out)).Decode(&raw), out)
	if v != nil && len(raw.Data) > 0 {
		require.NoError(f.t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}, err
}

// seedCatalog adds the pho and tra-da menu items and tables T5 to T7.
func (f *cliFixture) seedCatalog() {
	f.t.Helper()
	f.mustRun("menu", "add", "pho", "Pho bo", "40000")
	f.mustRun("menu", "add", "tra-da", "Tra da", "5000")
	for _, tb := range []string{"T5", "T6", "T7"} {
		f.mustRun("tables", "add", tb)
	}
}

func (f *cliFixture) createOrder(table string, lines ...string) orderView {
	f.t.Helper()
	var v orderView
	_, err := f.runJSON(&v, append([]string{"order", "create", table}, lines...)...)
	require.NoError(f.t, err)
	return v
}

func lineFor(t *testing.T, v orderView, menuItemID string) string {
	t.Helper()
	for _, it := range v.Items {
		if it.MenuItemID == menuItemID {
			return it.ID
		}
	}
	t.Fatalf("order %s has no %s line", v.Order.ID, menuItemID)
	return ""
}
