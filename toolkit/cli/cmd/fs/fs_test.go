package fs

import (
	"bytes"
	"net"
	"testing"

	"ekv"
	"ekv/config"
	"ekv/toolkit/cli/cmd"
	"ekv/types"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

type shell struct {
	t   *testing.T
	app *cli.App
	out *bytes.Buffer
}

func newShell(t *testing.T) *shell {
	cc := config.Default()
	cc.Log.Level = "error"
	cc.Directory.ServicePort = freePort(t)
	cc.Directory.LeasePort = freePort(t)
	cc.Storage = cc.Storage[:0]
	for i := 0; i < 2; i++ {
		cc.Storage = append(cc.Storage, config.Storage{
			Uuid:             int64(i),
			Host:             "127.0.0.1",
			ServicePort:      freePort(t),
			ManagementPort:   freePort(t),
			NotificationPort: freePort(t),
			ChainPort:        freePort(t),
			NumBlocks:        3,
		})
	}
	require.NoError(t, cc.Validate())
	sa, err := ekv.NewStandalone(cc)
	require.NoError(t, err)
	t.Cleanup(sa.Stop)

	cmd.Env.Directory = types.Addr(cc.Directory.ServiceAddr())
	cmd.Env.Lease = types.Addr(cc.Directory.LeaseAddr())
	cmd.Env.Cwd = "/"
	color.NoColor = true

	out := &bytes.Buffer{}
	return &shell{
		t:   t,
		out: out,
		app: &cli.App{
			Name:           "ekvctl",
			Commands:       Export(),
			Writer:         out,
			ExitErrHandler: func(*cli.Context, error) {},
		},
	}
}

// run executes one command line and returns what it printed.
func (s *shell) run(args ...string) (string, error) {
	s.out.Reset()
	err := s.app.Run(append([]string{"ekvctl"}, args...))
	return s.out.String(), err
}

func (s *shell) must(args ...string) string {
	out, err := s.run(args...)
	require.NoError(s.t, err, "%v", args)
	return out
}

func TestNamespaceCommands(t *testing.T) {
	s := newShell(t)

	s.must("mkdir", "-p", "/app/conf")
	s.must("create", "--blocks", "2", "--chain", "2", "/app/table")
	s.must("touch", "/app/conf/x")

	assert.Equal(t, "true\n", s.must("test", "-d", "/app/conf"))
	assert.Equal(t, "false\n", s.must("test", "-f", "/app/conf"))
	assert.Equal(t, "true\n", s.must("test", "/app/table"))

	assert.Equal(t, "conf/\ntable\n", s.must("ls", "/app"))
	assert.Contains(t, s.must("ls", "-R", "/app"), "conf/x")

	out := s.must("stat", "/app/table")
	assert.Contains(t, out, "Type:     regular")
	assert.Contains(t, out, "Storage:  in_memory")
	assert.Contains(t, out, "0_32768")

	s.must("chmod", "-022", "/app/table")
	assert.Contains(t, s.must("ls", "-l", "/app"), "-rwxr-xr-x")

	cmd.Env.Cwd = "/app"
	s.must("mv", "conf/x", "y")
	assert.Equal(t, "true\n", s.must("test", "/app/y"))

	_, err := s.run("rm", "/app")
	assert.Error(t, err)
	s.must("rm", "-r", "/app")
	assert.Equal(t, "false\n", s.must("test", "/app"))

	_, err = s.run("chmod", "9", "/x")
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestKVCommands(t *testing.T) {
	s := newShell(t)
	s.must("create", "--blocks", "1", "--chain", "2", "/kv")

	s.must("put", "/kv", "a", "1", "b", "2", "c", "3")
	assert.Equal(t, "a\t1\nb\t2\n", s.must("get", "/kv", "a", "b"))
	assert.Equal(t, "b\t2 -> 20\n", s.must("update", "/kv", "b", "20"))
	s.must("del", "/kv", "c")
	assert.Equal(t, "a\nb\n", s.must("keys", "/kv"))
	assert.Equal(t, "2\n", s.must("count", "/kv"))

	_, err := s.run("get", "/kv", "c")
	assert.Error(t, err)
	_, err = s.run("put", "/kv", "a", "1", "odd")
	assert.ErrorIs(t, err, ErrInvalidArg)

	s.must("split", "/kv")
	assert.Contains(t, s.must("stat", "/kv"), "32768_65536")
	assert.Equal(t, "2\n", s.must("count", "/kv"))
	s.must("merge", "/kv", "0_32768")
	out := s.must("stat", "/kv")
	assert.Contains(t, out, "0_65536")
	assert.Equal(t, "a\nb\n", s.must("keys", "/kv"))

	out = s.must("df")
	assert.Contains(t, out, "Total")
	assert.Contains(t, out, "6")
}
