package workspace

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	appErr "fuzoj/pkg/errors"
)

// writeTar walks root and writes every regular file and directory into tw
// with paths relative to root.
func writeTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		hdr, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return appErr.Wrapf(err, appErr.WorkerFilesystemError, "write tar header failed")
		}
		if d.IsDir() {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return appErr.Wrapf(openErr, appErr.WorkerFilesystemError, "open file for archival failed")
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return appErr.Wrapf(err, appErr.WorkerFilesystemError, "write tar body failed")
		}
		return nil
	})
}
