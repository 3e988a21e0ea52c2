package browser

import (
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/ternarybob/linkprobe/internal/models"
)

// hopNode is one request in a navigation. redirectedFrom links a request to
// the one whose redirect response produced it.
type hopNode struct {
	url            string
	status         int
	headers        map[string]string
	hasResponse    bool
	redirectedFrom *hopNode
}

// Recorder captures the redirect chain of the main document navigation from
// CDP network events. Handle is called from the chromedp event goroutine.
type Recorder struct {
	mu     sync.Mutex
	mainID network.RequestID
	latest map[network.RequestID]*hopNode
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{latest: make(map[network.RequestID]*hopNode)}
}

// Handle consumes a CDP event. Events other than document requests and
// their responses are ignored.
func (r *Recorder) Handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type != network.ResourceTypeDocument || e.Request == nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.mainID == "" {
			r.mainID = e.RequestID
		}

		prev := r.latest[e.RequestID]
		if prev != nil && e.RedirectResponse != nil {
			// CDP reuses the request id across redirects and reports the
			// redirect response on the follow-up request.
			prev.url = e.RedirectResponse.URL
			prev.status = int(e.RedirectResponse.Status)
			prev.headers = flattenHeaders(e.RedirectResponse.Headers)
			prev.hasResponse = true
		} else {
			prev = nil
		}
		r.latest[e.RequestID] = &hopNode{url: e.Request.URL, redirectedFrom: prev}

	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()

		node := r.latest[e.RequestID]
		if node == nil {
			return
		}
		node.url = e.Response.URL
		node.status = int(e.Response.Status)
		node.headers = flattenHeaders(e.Response.Headers)
		node.hasResponse = true
	}
}

// Chain returns the main navigation's hops in request order.
func (r *Recorder) Chain() []models.RawHop {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReconstructChain(r.latest[r.mainID])
}

// ReconstructChain walks redirect origins backward from final and reverses
// the result into chronological order. Requests that never received a
// response are skipped. A nil final yields an empty chain.
func ReconstructChain(final *hopNode) []models.RawHop {
	hops := make([]models.RawHop, 0)
	for node := final; node != nil; node = node.redirectedFrom {
		if !node.hasResponse {
			continue
		}
		hops = append(hops, models.RawHop{URL: node.url, StatusCode: node.status, Headers: node.headers})
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	return hops
}

// flattenHeaders converts CDP headers to strings. Multi-value headers
// arrive newline separated and are kept that way.
func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
