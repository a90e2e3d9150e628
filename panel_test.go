package main

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ochinchina/stackpanel/config"
	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/executor/executortest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testPasswd = "root:x:0:0:root:/root:/bin/bash\nalice:x:1001:1001::/srv/sftp/alice:/bin/bash\n"
const testGroup = "root:x:0:\nalice:x:1001:\nsftpusers:x:2000:alice\n"

const (
	testUser = "admin"
	testPass = "secret"
)

// newTestPanel builds a Panel on an in-memory file system. useradd, userdel
// and usermod edit the in-memory passwd and group files.
func newTestPanel(t *testing.T) (*Panel, afero.Fs, *executortest.Fake) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/passwd", []byte(testPasswd), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/group", []byte(testGroup), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/srv/stack/.env", []byte("# stack\nAPP_DOMAIN=app.example.com\nDB_PASS=secret\n"), 0o640))

	fake := executortest.NewFake()
	uid := 1100
	fake.On("useradd", func(cmd executor.Command) executor.Result {
		user := cmd.Args[len(cmd.Args)-1]
		uid++
		appendTo(fs, "/etc/passwd", fmt.Sprintf("%s:x:%d:%d::/srv/sftp/%s:/bin/bash", user, uid, uid, user))
		return executor.Result{}
	})
	fake.On("usermod", func(cmd executor.Command) executor.Result {
		group, user := cmd.Args[1], cmd.Args[2]
		b, _ := afero.ReadFile(fs, "/etc/group")
		lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
		for i, line := range lines {
			if strings.HasPrefix(line, group+":") {
				if strings.HasSuffix(line, ":") {
					lines[i] = line + user
				} else {
					lines[i] = line + "," + user
				}
			}
		}
		_ = afero.WriteFile(fs, "/etc/group", []byte(strings.Join(lines, "\n")+"\n"), 0o644)
		return executor.Result{}
	})
	fake.On("userdel", func(cmd executor.Command) executor.Result {
		user := cmd.Args[len(cmd.Args)-1]
		b, _ := afero.ReadFile(fs, "/etc/passwd")
		var out strings.Builder
		for _, line := range strings.Split(strings.TrimSuffix(string(b), "\n"), "\n") {
			if !strings.HasPrefix(line, user+":") {
				out.WriteString(line + "\n")
			}
		}
		_ = afero.WriteFile(fs, "/etc/passwd", []byte(out.String()), 0o644)
		return executor.Result{}
	})

	settings := config.NewConfig("/etc/stackpanel/panel.conf").Settings()
	settings.Panel.Username = testUser
	settings.Panel.Password = testPass
	return newPanel(settings, fs, fake), fs, fake
}

func appendTo(fs afero.Fs, path, line string) {
	b, _ := afero.ReadFile(fs, path)
	_ = afero.WriteFile(fs, path, append(b, []byte(line+"\n")...), 0o644)
}
