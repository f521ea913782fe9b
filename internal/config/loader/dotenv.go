package loader

import (
	"fmt"

	"github.com/joho/godotenv"
)

// DotenvLoader reads env files such as .env and .env.production.
//
// Files are read in order and later files override variables of earlier
// ones. Missing files are skipped. References to ${VAR} inside a file are
// expanded by the parser against the variables defined above them and the
// process environment.
type DotenvLoader struct {
	fs    FileSystem
	files []string
}

// NewDotenvLoader creates a loader for the given env files.
func NewDotenvLoader(files ...string) *DotenvLoader {
	return NewDotenvLoaderWithFS(DefaultFS(), files...)
}

// NewDotenvLoaderWithFS creates an env-file loader with a custom file system.
func NewDotenvLoaderWithFS(fs FileSystem, files ...string) *DotenvLoader {
	return &DotenvLoader{fs: fs, files: files}
}

// Files returns the configured file list.
func (l *DotenvLoader) Files() []string {
	out := make([]string, len(l.files))
	copy(out, l.files)
	return out
}

// Load parses every file and returns the combined variables.
func (l *DotenvLoader) Load() (map[string]string, error) {
	vars := make(map[string]string)
	for _, path := range l.files {
		data, err := readFile(l.fs, path)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		parsed, err := ParseDotenv(path, data)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			vars[k] = v
		}
	}
	return vars, nil
}

// ParseDotenv parses env-file content. source names the file in errors.
func ParseDotenv(source string, data []byte) (map[string]string, error) {
	vars, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: fmt.Errorf("dotenv: %w", err)}
	}
	return vars, nil
}
