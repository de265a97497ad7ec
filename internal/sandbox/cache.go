package sandbox

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// chunkCache memoizes parsed script chunks keyed by path and
// modification time, so a hot rule's script is only parsed once per
// edit rather than on every invocation.
type chunkCache struct {
	mu      sync.Mutex
	entries map[string]cachedChunk
}

type cachedChunk struct {
	modTime int64
	proto   *lua.FunctionProto
}

func newChunkCache() *chunkCache {
	return &chunkCache{entries: map[string]cachedChunk{}}
}

// Load returns the compiled proto for path, parsing from disk only
// when the file is new or has changed since the cached compile.
func (c *chunkCache) Load(path string) (*lua.FunctionProto, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	modTime := info.ModTime().UnixNano()

	c.mu.Lock()
	if entry, ok := c.entries[path]; ok && entry.modTime == modTime {
		c.mu.Unlock()
		return entry.proto, nil
	}
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	chunk, err := parse.Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}

	c.mu.Lock()
	c.entries[path] = cachedChunk{modTime: modTime, proto: proto}
	c.mu.Unlock()

	return proto, nil
}
