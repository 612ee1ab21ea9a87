package module

import "sync"

var (
	mu  sync.RWMutex
	reg = map[string]any{}
)

// Register publishes a module's ports under its name
func Register(name string, ports any) {
	mu.Lock()
	defer mu.Unlock()
	reg[name] = ports
}

// Lookup returns the ports registered under name when they are a T
func Lookup[T any](name string) (T, bool) {
	mu.RLock()
	v, ok := reg[name]
	mu.RUnlock()
	out, ok2 := v.(T)
	return out, ok && ok2
}
