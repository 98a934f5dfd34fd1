package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/chron/core"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[startup.a]
command = "true"
keepAlive = false
`)

	sup := newTestSupervisor(t)
	require.NoError(t, Load(sup, path))

	logger := core.NewLogrusAdapter(logrus.PanicLevel)
	w, err := NewWatcher(path, sup, logger)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
[startup.a]
command = "true"
keepAlive = false

[startup.b]
command = "true"
keepAlive = false
`), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		names := make(map[string]bool)
		for _, j := range sup.ListJobs() {
			names[j.Name] = true
		}
		if names["b"] {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not reload config within deadline")
}
