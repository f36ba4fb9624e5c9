package constants

// FileStatus is the per-file outcome reported by batch uploads.
type FileStatus string

const (
	FileStatusOK    FileStatus = "ok"
	FileStatusError FileStatus = "error"
)
