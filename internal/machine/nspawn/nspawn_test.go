package nspawn

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barley-project/barley/internal/machine"
	"github.com/barley-project/barley/internal/runner"
)

type call struct {
	script string
	stdin  string
}

type recordingRunner struct {
	calls  []call
	output string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, script string, stdin io.Reader) (string, error) {
	c := call{script: script}
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		c.stdin = string(data)
	}
	r.calls = append(r.calls, c)
	return r.output, r.err
}

func (r *recordingRunner) String() string {
	return "recording"
}

func TestImport(t *testing.T) {
	r := &recordingRunner{}
	err := New(r).Import(context.Background(), "cereal-1", strings.NewReader("tar"))
	require.NoError(t, err)
	assert.Equal(t, []call{{script: "machinectl -q import-tar - 'cereal-1'", stdin: "tar"}}, r.calls)
}

func TestInstall(t *testing.T) {
	r := &recordingRunner{}
	err := New(r).Install(context.Background(), "cereal-1", machine.File{Name: "machine.key", Mode: 0600, Data: []byte("key")})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Equal(t,
		`systemd-nspawn -M 'cereal-1' -UPq sh -c 'install -m 600 -o barley -g barley /dev/null '"'"'/var/lib/barley/machine.key'"'"' && cat > '"'"'/var/lib/barley/machine.key'"'"''`,
		r.calls[0].script)
	assert.Equal(t, "key", r.calls[0].stdin)
}

func TestConfigureNetwork(t *testing.T) {
	r := &recordingRunner{}
	err := New(r).ConfigureNetwork(context.Background(), "cereal-1", "[Network]\nBridge=br0\n")
	require.NoError(t, err)
	assert.Equal(t, []call{{
		script: "mkdir -p /etc/systemd/nspawn && cat > '/etc/systemd/nspawn/cereal-1.nspawn'",
		stdin:  "[Network]\nBridge=br0\n",
	}}, r.calls)
}

func TestLifecycleCommands(t *testing.T) {
	r := &recordingRunner{output: "ssh-ed25519 AAAA cereal-1\n"}
	s := New(r)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "cereal-1"))
	require.NoError(t, s.Running(ctx, "cereal-1"))
	require.NoError(t, s.Exec(ctx, "cereal-1"))
	out, err := s.Fetch(ctx, "cereal-1", "ca.pub")
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAA cereal-1\n", out)

	assert.Equal(t, []call{
		{script: "machinectl start 'cereal-1'"},
		{script: "machinectl show --property=State --value 'cereal-1' | grep -q running"},
		{script: "systemd-run -M 'cereal-1' -Pq --wait true"},
		{script: `systemd-run -M 'cereal-1' -Pq --wait sh -c 'cat '"'"'/var/lib/barley/ca.pub'"'"''`},
	}, r.calls)
}

func TestRunnerErrorPropagates(t *testing.T) {
	r := &recordingRunner{err: runner.ErrCommand}
	err := New(r).Start(context.Background(), "cereal-1")
	assert.True(t, errors.Is(err, runner.ErrCommand))
}

func TestConnect(t *testing.T) {
	var hosts []string
	connect := Connect(func(host string) runner.Runner {
		hosts = append(hosts, host)
		return &recordingRunner{}
	})

	local, err := connect(machine.Target{Local: true})
	require.NoError(t, err)
	assert.IsType(t, runner.LocalRunner{}, local.(*Supervisor).runner)

	remote, err := connect(machine.Target{Host: "seed-1"})
	require.NoError(t, err)
	assert.IsType(t, &recordingRunner{}, remote.(*Supervisor).runner)
	assert.Equal(t, []string{"seed-1"}, hosts)
}
