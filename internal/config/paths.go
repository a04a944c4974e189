package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the directory clinicbot keeps its state in.
const HomeEnv = "CLINICBOT_HOME"

// Paths locates clinicbot's files on disk.
type Paths struct {
	Base        string
	Config      string
	Credentials string // OAuth client secrets and cached tokens
	Data        string
	Database    string
	Logs        string
}

// ResolvePaths roots every path at $CLINICBOT_HOME, or ~/.clinicbot when
// that is unset.
func ResolvePaths() (Paths, error) {
	base := os.Getenv(HomeEnv)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".clinicbot")
	}
	return pathsUnder(base), nil
}

func pathsUnder(base string) Paths {
	p := Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		Credentials: filepath.Join(base, "credentials"),
		Data:        filepath.Join(base, "data"),
		Logs:        filepath.Join(base, "logs"),
	}
	p.Database = filepath.Join(p.Data, "clinicbot.db")
	return p
}

// LogFile places a bare file name in the logs directory. Names with a
// directory part, and the empty name, are returned as given.
func (p Paths) LogFile(name string) string {
	if name == "" || filepath.Base(name) != name {
		return name
	}
	return filepath.Join(p.Logs, name)
}
