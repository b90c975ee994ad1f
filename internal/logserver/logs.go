package logserver

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/msto63/kflogs/internal/api"
)

// maxLineSize bounds a single log line read from disk
const maxLineSize = 1024 * 1024

type logFile struct {
	name    string
	path    string
	modTime time.Time
	size    int64
}

// listLogFiles walks dir for *.log files, oldest modification first. A
// missing dir yields no files.
func listLogFiles(dir string) ([]logFile, error) {
	var files []logFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, logFile{name: d.Name(), path: path, modTime: info.ModTime(), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

// CollectLogs reads every log file of a job directory into one chunk per
// file, ordered by modification time
func CollectLogs(dir string) ([]api.LogChunk, error) {
	files, err := listLogFiles(dir)
	if err != nil {
		return nil, err
	}

	chunks := make([]api.LogChunk, 0, len(files))
	for _, f := range files {
		lines, err := readLines(f.path)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, api.LogChunk{
			File: f.name,
			FileData: api.FileData{
				DateCreated: f.modTime,
				Path:        f.path,
				Logs:        lines,
			},
		})
	}
	return chunks, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines := []string{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	return lines, scanner.Err()
}
