package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated TOML
// summary to w. This powers "config show", which shows the values in
// effect after every override layer has been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.Path != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.Path)
	} else {
		ew.printf("# Effective configuration\n\n")
	}

	ew.printf("server_url   = %q\n", r.ServerURL)
	ew.printf("frontend_url = %q\n\n", r.FrontendURL)

	ew.printf("[upload]\n")
	ew.printf("encrypt          = %t\n", r.Upload.Encrypt)
	ew.printf("parallel_uploads = %d\n", r.Upload.ParallelUploads)
	ew.printf("max_file_size    = %q\n\n", r.Upload.MaxFileSize)

	ew.printf("[share]\n")
	ew.printf("default_expiry_hours = %d\n\n", r.Share.DefaultExpiryHours)

	ew.printf("[logging]\n")
	ew.printf("log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("log_format = %q\n\n", r.Logging.LogFormat)

	ew.printf("[network]\n")
	ew.printf("connect_timeout = %q\n", r.Network.ConnectTimeout)
	ew.printf("request_timeout = %q\n", r.Network.RequestTimeout)

	if r.Network.UserAgent != "" {
		ew.printf("user_agent      = %q\n", r.Network.UserAgent)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
