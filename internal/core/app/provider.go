package app

import (
	"fmt"
	"os"
	"sync"

	"crossmod/internal/core/ports"
	"crossmod/internal/engine/source"
)

// FSProvider reads source units from disk. Overlays take precedence over the
// file content, so unsaved editor buffers can be analyzed.
type FSProvider struct {
	mu       sync.RWMutex
	overlays map[source.Handle][]byte
}

var _ ports.SourceProvider = (*FSProvider)(nil)

func NewFSProvider() *FSProvider {
	return &FSProvider{overlays: make(map[source.Handle][]byte)}
}

func (p *FSProvider) ReadText(h source.Handle) ([]byte, error) {
	p.mu.RLock()
	text, ok := p.overlays[h]
	p.mu.RUnlock()
	if ok {
		return append([]byte(nil), text...), nil
	}
	data, err := os.ReadFile(string(h))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", h, err)
	}
	return data, nil
}

func (p *FSProvider) IsAccessible(h source.Handle) bool {
	p.mu.RLock()
	_, ok := p.overlays[h]
	p.mu.RUnlock()
	if ok {
		return true
	}
	info, err := os.Stat(string(h))
	return err == nil && info.Mode().IsRegular()
}

// SetOverlay serves text for h instead of the file content.
func (p *FSProvider) SetOverlay(h source.Handle, text []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlays[h] = append([]byte(nil), text...)
}

// ClearOverlay falls back to the file content for h.
func (p *FSProvider) ClearOverlay(h source.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.overlays, h)
}
