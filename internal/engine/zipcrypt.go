package engine

import (
	"context"
	"io"
	"io/fs"

	"github.com/mholt/archives"
	yzip "github.com/yeka/zip"
)

// zipEncrypted reports whether any entry of the zip at name is encrypted.
func zipEncrypted(name string) (bool, error) {
	r, err := yzip.OpenReader(name)
	if err != nil {
		return false, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.IsEncrypted() {
			return true, nil
		}
	}
	return false, nil
}

// walkEncryptedZip hands every entry to handler the way archives.Zip does,
// decrypting (ZipCrypto or WinZip AES) with password on open.
func walkEncryptedZip(ctx context.Context, name, password string, handler archives.FileHandler) error {
	r, err := yzip.OpenReader(name)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.IsEncrypted() {
			f.SetPassword(password)
		}

		info := f.FileInfo()
		entry := f
		err := handler(ctx, archives.FileInfo{
			FileInfo:      info,
			Header:        f.FileHeader,
			NameInArchive: f.Name,
			Open: func() (fs.File, error) {
				rc, err := entry.Open()
				if err != nil {
					return nil, err
				}
				return zipEntry{ReadCloser: rc, info: info}, nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type zipEntry struct {
	io.ReadCloser
	info fs.FileInfo
}

func (e zipEntry) Stat() (fs.FileInfo, error) { return e.info, nil }
