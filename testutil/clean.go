package testutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// CleanDir makes sure the directory named by dirname exists and removes everything in it
// except for any directory entries specified by keeps.
func CleanDir(dirname string, keeps []string) error {
	err := os.MkdirAll(dirname, 0755)
	if err != nil {
		return err
	}
	fis, err := ioutil.ReadDir(dirname)
	if err != nil {
		return err
	}

	m := map[string]struct{}{}
	for _, k := range keeps {
		m[k] = struct{}{}
	}

	for _, fi := range fis {
		if _, found := m[fi.Name()]; found {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, fi.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}
