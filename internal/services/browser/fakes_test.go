package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/linkprobe/internal/models"
)

// fakePage records calls and serves a scripted DOM.
type fakePage struct {
	mu         sync.Mutex
	calls      []string
	visible    map[string]bool
	texts      map[string]bool
	clickErr   error
	probeErr   error
	before     []models.Cookie
	after      []models.Cookie
	html       string
	clicked    bool
	cookiesErr error
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) FirstVisible(ctx context.Context, selectors []string) (int, error) {
	p.record("probe")
	if p.probeErr != nil {
		return -1, p.probeErr
	}
	for i, sel := range selectors {
		if p.visible[sel] {
			return i, nil
		}
	}
	return -1, nil
}

func (p *fakePage) Click(ctx context.Context, selector string) (bool, error) {
	p.record("click:" + selector)
	if p.clickErr != nil {
		return false, p.clickErr
	}
	p.mu.Lock()
	p.clicked = true
	p.mu.Unlock()
	return true, nil
}

func (p *fakePage) ClickText(ctx context.Context, texts []string) (int, error) {
	p.record("click-text")
	for i, text := range texts {
		if p.texts[text] {
			p.mu.Lock()
			p.clicked = true
			p.mu.Unlock()
			return i, nil
		}
	}
	return -1, nil
}

func (p *fakePage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	p.record("cookies")
	if p.cookiesErr != nil {
		return nil, p.cookiesErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clicked {
		return p.after, nil
	}
	return p.before, nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	return []byte("png"), nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.record("html")
	if p.html == "" {
		return "", errors.New("no document")
	}
	return p.html, nil
}

// fakeSession serves a scripted navigation.
type fakeSession struct {
	page     *fakePage
	finalURL string
	chain    []models.RawHop
	navErr   error
	block    bool
	released atomic.Int32
}

func (s *fakeSession) Navigate(ctx context.Context, target string) (string, []models.RawHop, error) {
	s.page.record("navigate")
	if s.block {
		<-ctx.Done()
		return "", nil, ctx.Err()
	}
	if s.navErr != nil {
		return "", nil, s.navErr
	}
	return s.finalURL, s.chain, nil
}

func (s *fakeSession) Page() Page {
	return s.page
}

func (s *fakeSession) Release() {
	s.released.Add(1)
}
