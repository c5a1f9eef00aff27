package machine

import (
	"context"
	"io"
	"os"
)

// File is a trust artifact installed into a Machine.
type File struct {
	Name string
	Mode os.FileMode
	Data []byte
}

// Supervisor is the container or VM manager on the execution target. Every
// call goes through the same execution channel.
type Supervisor interface {
	// Import registers the decompressed tar stream as the named Machine.
	Import(ctx context.Context, name string, archive io.Reader) error
	// Install writes file into the Machine's trust directory.
	Install(ctx context.Context, name string, file File) error
	// ConfigureNetwork replaces the Machine's network stanza.
	ConfigureNetwork(ctx context.Context, name string, stanza string) error
	Start(ctx context.Context, name string) error
	// Running returns an error unless the Machine reports a running state.
	Running(ctx context.Context, name string) error
	// Exec runs a trivial command inside the Machine.
	Exec(ctx context.Context, name string) error
	// Fetch returns the content of a file from the Machine's trust directory.
	Fetch(ctx context.Context, name, file string) (string, error)
}

// Target describes where a Machine runs. Host is empty when Local is set.
type Target struct {
	Host  string
	Local bool
}

func (t Target) String() string {
	if t.Local {
		return "local"
	}
	return t.Host
}

// Connector builds the Supervisor for a Target.
type Connector func(Target) (Supervisor, error)
