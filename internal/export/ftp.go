// Package export mirrors completed daily CSV files to a remote FTP archive.
// Export is best-effort: a failed upload is retried at the next daily job.
package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/karachiwx/awos/internal/config"
)

const dialTimeout = 30 * time.Second

type Uploader struct {
	cfg config.ExportConf
}

// NewUploader returns nil when no host is configured; callers treat a nil
// uploader as export disabled.
func NewUploader(cfg config.ExportConf) *Uploader {
	if cfg.Host == "" {
		return nil
	}
	return &Uploader{cfg: cfg}
}

// Upload stores one local file on the remote archive under its base name.
func (u *Uploader) Upload(localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	conn, err := ftp.Dial(u.cfg.Host, ftp.DialWithTimeout(dialTimeout))
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", u.cfg.Host, err)
	}
	defer conn.Quit()

	user, pass := u.cfg.User, u.cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	remote := filepath.Base(localPath)
	if u.cfg.Dir != "" {
		if err := conn.ChangeDir(u.cfg.Dir); err != nil {
			return fmt.Errorf("ftp cwd %s: %w", u.cfg.Dir, err)
		}
	}
	if err := conn.Stor(remote, f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remote, err)
	}

	log.Printf("export: uploaded %s", remote)
	return nil
}
