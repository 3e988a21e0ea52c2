package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docRequest(id, url string, redirect *network.Response) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID:        network.RequestID(id),
		Request:          &network.Request{URL: url},
		Type:             network.ResourceTypeDocument,
		RedirectResponse: redirect,
	}
}

func docResponse(id, url string, status int64, headers network.Headers) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		RequestID: network.RequestID(id),
		Type:      network.ResourceTypeDocument,
		Response:  &network.Response{URL: url, Status: status, Headers: headers},
	}
}

func TestRecorderReconstructsRedirectChainInOrder(t *testing.T) {
	r := NewRecorder()

	r.Handle(docRequest("1", "https://www.awin1.com/cread.php?x=1", nil))
	r.Handle(docRequest("1", "https://track.example/c?x=1", &network.Response{
		URL: "https://www.awin1.com/cread.php?x=1", Status: 302,
		Headers: network.Headers{"Location": "https://track.example/c?x=1", "Server": "awin"},
	}))
	r.Handle(docRequest("1", "https://shop.example/p?x=1", &network.Response{
		URL: "https://track.example/c?x=1", Status: 301,
		Headers: network.Headers{"Location": "https://shop.example/p?x=1"},
	}))
	r.Handle(docResponse("1", "https://shop.example/p?x=1", 200, network.Headers{"Server": "nginx"}))

	chain := r.Chain()
	require.Len(t, chain, 3)
	assert.Equal(t, "https://www.awin1.com/cread.php?x=1", chain[0].URL)
	assert.Equal(t, 302, chain[0].StatusCode)
	assert.Equal(t, "awin", chain[0].Headers["Server"])
	assert.Equal(t, "https://track.example/c?x=1", chain[1].URL)
	assert.Equal(t, 301, chain[1].StatusCode)
	assert.Equal(t, "https://shop.example/p?x=1", chain[2].URL)
	assert.Equal(t, 200, chain[2].StatusCode)
}

func TestRecorderIgnoresSubresourcesAndOtherDocuments(t *testing.T) {
	r := NewRecorder()

	r.Handle(docRequest("main", "https://amzn.to/abc", nil))
	r.Handle(&network.EventRequestWillBeSent{
		RequestID: "img",
		Request:   &network.Request{URL: "https://cdn.example/pixel.gif"},
		Type:      network.ResourceTypeImage,
	})
	r.Handle(docResponse("main", "https://amzn.to/abc", 200, nil))
	// An iframe document loaded after the main response
	r.Handle(docRequest("frame", "https://ads.example/frame", nil))
	r.Handle(docResponse("frame", "https://ads.example/frame", 200, nil))

	chain := r.Chain()
	require.Len(t, chain, 1)
	assert.Equal(t, "https://amzn.to/abc", chain[0].URL)
}

func TestRecorderEmptyWhenNothingObserved(t *testing.T) {
	r := NewRecorder()
	assert.Empty(t, r.Chain())
	assert.NotNil(t, r.Chain())
}

func TestReconstructChainReversesDiscoveryOrder(t *testing.T) {
	first := &hopNode{url: "https://a.example", status: 302, hasResponse: true}
	second := &hopNode{url: "https://b.example", status: 307, hasResponse: true, redirectedFrom: first}
	third := &hopNode{url: "https://c.example", status: 200, hasResponse: true, redirectedFrom: second}

	chain := ReconstructChain(third)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"},
		[]string{chain[0].URL, chain[1].URL, chain[2].URL})
}

func TestReconstructChainSkipsHopsWithoutResponse(t *testing.T) {
	first := &hopNode{url: "https://a.example", status: 302, hasResponse: true}
	pending := &hopNode{url: "https://b.example", redirectedFrom: first}

	chain := ReconstructChain(pending)
	require.Len(t, chain, 1)
	assert.Equal(t, "https://a.example", chain[0].URL)
	assert.Empty(t, ReconstructChain(nil))
}
