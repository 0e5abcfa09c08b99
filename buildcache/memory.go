package buildcache

import "sync"

// Memory keeps signatures for the lifetime of the process only.
type Memory struct {
	mu   sync.Mutex
	sigs map[string]string
}

func NewMemory() *Memory {
	return &Memory{sigs: map[string]string{}}
}

func (m *Memory) Signature(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.sigs[key]
	return sig, ok, nil
}

func (m *Memory) Store(key, sig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigs[key] = sig
	return nil
}

func (m *Memory) Forget(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sigs, key)
	return nil
}

func (m *Memory) Len() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sigs), nil
}
