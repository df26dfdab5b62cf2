package logsink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RunChild is the entry point the re-exec'd process runs: it drains
// stdin (the pipe's read end) line by line and appends to a rotating
// log file until the parent closes its write end (pipe EOF), which is
// how Sink.Close and the normal process-exit path both signal shutdown.
func RunChild() error {
	if err := os.MkdirAll(defaultLogDir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(defaultLogDir, defaultLogFile)

	f, err := openForAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	written, err := currentSize(f)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			n, werr := f.WriteString(line)
			if werr != nil {
				return fmt.Errorf("write log line: %w", werr)
			}
			written += int64(n)
			if written >= maxLogFileBytes {
				f, written, err = rotate(f, path)
				if err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return fmt.Errorf("read log pipe: %w", readErr)
		}
	}
}

func openForAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func currentSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat log file: %w", err)
	}
	return info.Size(), nil
}

// rotate closes f, renames path to path+".1" (overwriting any previous
// rotation), and reopens a fresh file at path.
func rotate(f *os.File, path string) (*os.File, int64, error) {
	f.Close()
	if err := os.Rename(path, path+".1"); err != nil && !os.IsNotExist(err) {
		return nil, 0, fmt.Errorf("rotate log file: %w", err)
	}
	nf, err := openForAppend(path)
	if err != nil {
		return nil, 0, err
	}
	return nf, 0, nil
}
