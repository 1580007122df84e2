package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/hostctl/core/configwatch"
)

type recordingReconfigurer struct {
	calls []Settings
}

func (r *recordingReconfigurer) Reconfigure(_ context.Context, s Settings) bool {
	r.calls = append(r.calls, s)
	return true
}

// lineLoader reads "token\nid,id" files.
func lineLoader(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if lines[0] == "" {
		return Settings{}, errors.New("empty file")
	}
	s := Settings{Token: lines[0]}
	if len(lines) > 1 {
		for _, f := range strings.Split(lines[1], ",") {
			var id int64
			for _, c := range f {
				id = id*10 + int64(c-'0')
			}
			s.AuthorizedUsers = append(s.AuthorizedUsers, id)
		}
	}
	return s, nil
}

func TestReloadAppliesChangedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	os.WriteFile(path, []byte("1:a\n10,20"), 0600)

	target := &recordingReconfigurer{}
	r := NewReloader(target, lineLoader, Settings{Token: "1:a", AuthorizedUsers: []int64{10}}, testLogger())

	r.Reload(path)

	if len(target.calls) != 1 {
		t.Fatalf("reconfigure calls = %d, want 1", len(target.calls))
	}
	got := target.calls[0]
	if got.Token != "1:a" || len(got.AuthorizedUsers) != 2 || got.AuthorizedUsers[1] != 20 {
		t.Errorf("settings = %+v", got)
	}
}

func TestReloadSkipsUnchangedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	os.WriteFile(path, []byte("1:a\n10"), 0600)

	target := &recordingReconfigurer{}
	r := NewReloader(target, lineLoader, Settings{Token: "1:a", AuthorizedUsers: []int64{10}}, testLogger())

	r.Reload(path)
	if len(target.calls) != 0 {
		t.Errorf("reconfigure called %d times for unchanged settings", len(target.calls))
	}

	os.WriteFile(path, []byte("2:b\n10"), 0600)
	r.Reload(path)
	r.Reload(path)
	if len(target.calls) != 1 {
		t.Errorf("reconfigure calls = %d, want 1", len(target.calls))
	}
}

func TestReloadKeepsSessionOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	os.WriteFile(path, []byte(""), 0600)

	target := &recordingReconfigurer{}
	NewReloader(target, lineLoader, Settings{Token: "1:a"}, testLogger()).Reload(path)

	if len(target.calls) != 0 {
		t.Errorf("reconfigure called for a bad file")
	}
}

func TestReloadFromWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	os.WriteFile(path, []byte("1:a\n10"), 0600)

	tr := &fakeTransport{spyReplier: &spyReplier{}, valid: true}
	svc, _, tokens := newTestService(t, tr, testLogger())
	if !svc.Start(context.Background()) {
		t.Fatal("start failed")
	}

	r := NewReloader(svc, lineLoader, Settings{Token: "123:abc", AuthorizedUsers: []int64{authorizedUser}}, testLogger())
	w := configwatch.New(20*time.Millisecond, testLogger())
	w.Watch(path, r.Reload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(path, []byte("9:new\n10,11"), 0600)

	waitFor(t, "session restart", func() bool { return len(tokens()) == 2 && svc.Status().State == Running })
	if got := tokens()[1]; got != "9:new" {
		t.Errorf("last token = %q, want 9:new", got)
	}
}
