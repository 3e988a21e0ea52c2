package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/linkprobe/internal/models"
)

// visibleIndexJS returns the index of the first selector in the list that
// matches a rendered, non-transparent element.
const visibleIndexJS = `(function(selectors) {
	for (var i = 0; i < selectors.length; i++) {
		var el;
		try { el = document.querySelector(selectors[i]); } catch (e) { continue; }
		if (!el) continue;
		var rect = el.getBoundingClientRect();
		var style = window.getComputedStyle(el);
		if (rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none' &&
			parseFloat(style.opacity || '1') > 0) {
			return i;
		}
	}
	return -1;
})(%s)`

const clickSelectorJS = `(function(selector) {
	var el;
	try { el = document.querySelector(selector); } catch (e) { return false; }
	if (!el) return false;
	el.click();
	return true;
})(%s)`

// clickTextJS clicks the first visible clickable element whose trimmed,
// lower-cased text equals a matcher, trying matchers in order.
const clickTextJS = `(function(texts) {
	var nodes = Array.prototype.slice.call(
		document.querySelectorAll('button, a, [role="button"], input[type="button"], input[type="submit"]'));
	var visible = nodes.filter(function(el) {
		var rect = el.getBoundingClientRect();
		var style = window.getComputedStyle(el);
		return rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
	});
	for (var i = 0; i < texts.length; i++) {
		for (var j = 0; j < visible.length; j++) {
			var label = (visible[j].innerText || visible[j].value || '').trim().toLowerCase();
			if (label === texts[i]) {
				visible[j].click();
				return i;
			}
		}
	}
	return -1;
})(%s)`

// cdpPage implements Page on a chromedp tab context.
type cdpPage struct {
	ctx context.Context
}

func newCDPPage(tabCtx context.Context) *cdpPage {
	return &cdpPage{ctx: tabCtx}
}

// run executes actions on the tab, bounded by the caller's ctx.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func jsArg(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *cdpPage) FirstVisible(ctx context.Context, selectors []string) (int, error) {
	arg, err := jsArg(selectors)
	if err != nil {
		return -1, err
	}
	idx := -1
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(visibleIndexJS, arg), &idx)); err != nil {
		return -1, err
	}
	return idx, nil
}

func (p *cdpPage) Click(ctx context.Context, selector string) (bool, error) {
	arg, err := jsArg(selector)
	if err != nil {
		return false, err
	}
	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickSelectorJS, arg), &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (p *cdpPage) ClickText(ctx context.Context, texts []string) (int, error) {
	arg, err := jsArg(texts)
	if err != nil {
		return -1, err
	}
	idx := -1
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickTextJS, arg), &idx)); err != nil {
		return -1, err
	}
	return idx, nil
}

// Cookies returns the full cookie jar of the session's browser.
func (p *cdpPage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var cookies []models.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		jar, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]models.Cookie, 0, len(jar))
		for _, c := range jar {
			cookies = append(cookies, models.Cookie{
				Name:     c.Name,
				Domain:   c.Domain,
				Path:     c.Path,
				Value:    c.Value,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: string(c.SameSite),
				Expires:  c.Expires,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// Screenshot captures the current viewport as PNG.
func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *cdpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}
