package sshserver

// Config defines SSH console settings. An empty AuthorizedKeysPath admits
// any key from a loopback address only.
type Config struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Prompt             string
	Theme              string
}
