package runtimecfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// jsonFile is a JSON-backed key/value store shared between processes. Every
// read checks the file mtime and reloads when another process wrote it;
// writes re-read the file first so concurrent writers only lose their own
// keys, never the whole document.
type jsonFile struct {
	path     string
	label    string
	defaults func() map[string]any

	mu        sync.Mutex
	data      map[string]any
	lastMtime time.Time
	hasMtime  bool
}

func configDebugEnabled() bool {
	return strings.EqualFold(os.Getenv("WHATSAPP_CONFIG_DEBUG"), "true")
}

func newJSONFile(path, label string, defaults func() map[string]any) *jsonFile {
	f := &jsonFile{
		path:     path,
		label:    label,
		defaults: defaults,
	}
	f.data = f.loadFromDisk()
	f.lastMtime, f.hasMtime = f.mtime()
	if configDebugEnabled() {
		logrus.Infof("[CONFIG] %s path=%s", f.label, f.path)
	}
	return f
}

func (f *jsonFile) loadFromDisk() map[string]any {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return f.defaults()
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		logrus.Warnf("[CONFIG] %s failed to parse %s: %v", f.label, f.path, err)
		return f.defaults()
	}
	return data
}

func (f *jsonFile) mtime() (time.Time, bool) {
	info, err := os.Stat(f.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func (f *jsonFile) refreshIfChanged() {
	current, ok := f.mtime()
	if !ok || (f.hasMtime && current.Equal(f.lastMtime)) {
		return
	}
	f.data = f.loadFromDisk()
	f.lastMtime = current
	f.hasMtime = true
	if configDebugEnabled() {
		logrus.Infof("[CONFIG] %s reloaded", f.label)
	}
}

// get returns the current value for key after a possible reload.
func (f *jsonFile) get(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshIfChanged()
	return f.data[key]
}

// update applies mutate to the freshest on-disk state and persists the
// result with a temp-file-and-rename write.
func (f *jsonFile) update(mutate func(data map[string]any)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.loadFromDisk()
	mutate(data)
	if err := f.writeToDisk(data); err != nil {
		return err
	}
	f.data = data
	return nil
}

func (f *jsonFile) writeToDisk(data map[string]any) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	f.lastMtime, f.hasMtime = f.mtime()
	return nil
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func asStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asStringMap(value any) map[string]string {
	raw, ok := value.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func asInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
