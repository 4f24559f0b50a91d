package socfeed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"

	"github.com/invisible-tech/mazerunner-sdk/internal/types"
)

func spooled(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".cef":
		return true
	}
	return false
}

func (f *Feeder) processExisting(ctx context.Context) error {
	entries, err := os.ReadDir(f.cfg.SpoolDir)
	if err != nil {
		return fmt.Errorf("failed to read spool: %w", err)
	}
	var result *multierror.Error
	for _, e := range entries {
		if e.IsDir() || !spooled(e.Name()) {
			continue
		}
		if err := f.ProcessFile(ctx, filepath.Join(f.cfg.SpoolDir, e.Name())); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (f *Feeder) watchSpool(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !spooled(event.Name) {
				continue
			}
			if err := f.ProcessFile(ctx, event.Name); err != nil {
				f.log.WithError(err).WithField("path", event.Name).Debug("Spooled file not forwarded")
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.WithError(err).Error("Watcher error")
		}
	}
}

// ProcessFile submits the events of one spooled file, then moves it to
// processed/ or failed/. A file that has already been moved is skipped.
func (f *Feeder) ProcessFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Created but not yet written; the write event brings it back.
		return nil
	}

	name := filepath.Base(path)
	events, err := DecodeEvents(name, data)
	if err == nil {
		err = f.submit(ctx, inputSpool, name, events)
	} else {
		f.record(inputSpool, name, 0, err)
	}

	dest := f.processedDir()
	if err != nil {
		dest = f.failedDir()
	}
	if mvErr := os.Rename(path, filepath.Join(dest, name)); mvErr != nil {
		return multierror.Append(err, fmt.Errorf("failed to move %s: %w", name, mvErr)).ErrorOrNil()
	}
	return err
}

// DecodeEvents reads a JSON object, a JSON array of objects, or CEF records
// one per line. Any bad CEF line fails the whole file.
func DecodeEvents(name string, data []byte) ([]types.SOCEvent, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var events []types.SOCEvent
			if err := json.Unmarshal(trimmed, &events); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", name, err)
			}
			return events, nil
		}
		var event types.SOCEvent
		if err := json.Unmarshal(trimmed, &event); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return []types.SOCEvent{event}, nil
	}

	var (
		events []types.SOCEvent
		result *multierror.Error
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		ev, err := ParseCEF(text)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s:%d: %w", name, line, err))
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return events, nil
}
