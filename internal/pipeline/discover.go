package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var errNoInputs = errors.New("no input files")

var (
	supportedExt = map[string]bool{".hwp": true, ".hwpx": true, ".pdf": true}
	idName       = regexp.MustCompile(`^meta_(\d+)_file_(\d+)`)
)

// Discover lists the exam files under dir. Files named meta_<m>_file_<f>...
// keep those ids; any other file gets meta 0 and a file id from its
// position in name order.
func Discover(dir string) ([]Input, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if supportedExt[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", errNoInputs, dir)
	}
	sort.Strings(paths)

	inputs := make([]Input, 0, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)
		in := Input{FileID: int64(i + 1), FileName: name, Path: path}
		if m := idName.FindStringSubmatch(name); m != nil {
			in.MetaID, _ = strconv.ParseInt(m[1], 10, 64)
			in.FileID, _ = strconv.ParseInt(m[2], 10, 64)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
