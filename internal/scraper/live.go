package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/browser"
	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/filter"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// KeyAttr is the data attribute (data-ytf-key) tying a mirrored node to its
// element in the tab
const KeyAttr = "ytf-key"

// LiveSession drives a real YouTube tab. Feed nodes are mirrored into a
// dom.Document, and the decisions stamped on the mirror are pushed back to
// the tab on every poll.
type LiveSession struct {
	cfg     config.BrowserConfig
	cookies []*network.Cookie
	logger  *zap.Logger

	mu      sync.Mutex
	mirror  *mirror
	onClick func(ctx context.Context, target *dom.Element)
}

// NewLive creates a session that mirrors into doc. cookies may be empty
// for a signed-out feed.
func NewLive(doc *dom.Document, cfg config.BrowserConfig, cookies []*network.Cookie, logger *zap.Logger) *LiveSession {
	return &LiveSession{
		cfg:     cfg,
		cookies: cookies,
		logger:  logger.Named("live"),
		mirror:  newMirror(doc),
	}
}

// OnClick registers the handler for clicks on watch links in the tab
func (s *LiveSession) OnClick(fn func(ctx context.Context, target *dom.Element)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClick = fn
}

// Run opens the feed and polls until ctx is cancelled or the tab goes away
func (s *LiveSession) Run(ctx context.Context) error {
	browserCtx, cancel := browser.NewContext(ctx, s.cfg.Headless, s.logger)
	defer cancel()

	if err := s.injectCookies(browserCtx); err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(s.cfg.FeedURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}
	s.logger.Info("feed loaded", zap.String("url", s.cfg.FeedURL))

	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := s.poll(browserCtx, ctx); err != nil {
			if browserCtx.Err() != nil {
				return fmt.Errorf("browser closed: %w", err)
			}
			s.logger.Warn("poll failed", zap.Error(err))
		}
	}
}

func (s *LiveSession) poll(browserCtx, ctx context.Context) error {
	var snap snapshot
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(collectJS, &snap)); err != nil {
		return fmt.Errorf("failed to collect feed: %w", err)
	}

	clicks, err := s.mirror.apply(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	onClick := s.onClick
	s.mu.Unlock()
	if onClick != nil {
		for _, target := range clicks {
			go onClick(ctx, target)
		}
	}

	patches := s.mirror.diffPatches()
	if len(patches) == 0 {
		return nil
	}
	payload, err := json.Marshal(patches)
	if err != nil {
		return err
	}
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(fmt.Sprintf(patchJS, payload), nil)); err != nil {
		s.mirror.forget(patches)
		return fmt.Errorf("failed to patch feed: %w", err)
	}
	return nil
}

func (s *LiveSession) injectCookies(ctx context.Context) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range s.cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// snapshot is what collectJS returns on each poll
type snapshot struct {
	Session  string          `json:"session"`
	Location string          `json:"location"`
	Title    string          `json:"title"`
	Nodes    []snapshotNode  `json:"nodes"`
	Clicks   []snapshotClick `json:"clicks"`
}

// snapshotNode carries HTML only when the node is new or its signature changed
type snapshotNode struct {
	Key  string `json:"key"`
	Sig  string `json:"sig"`
	HTML string `json:"html,omitempty"`
}

type snapshotClick struct {
	Key  string `json:"key"`
	Href string `json:"href"`
}

// Badge is the annotation pushed to the tab
type Badge struct {
	Text  string `json:"text"`
	Title string `json:"title"`
	Style string `json:"style"`
}

// Patch is the state of one mirrored node to reproduce in the tab
type Patch struct {
	Key    string `json:"key"`
	Mark   string `json:"mark"`
	Score  string `json:"score"`
	Reason string `json:"reason"`
	Hidden bool   `json:"hidden"`
	Badge  Badge  `json:"badge"`
}

// mirror keeps the document in step with the tab
type mirror struct {
	doc *dom.Document

	session  string
	location string
	nodes    map[string]*dom.Element
	sigs     map[string]string
	pushed   map[string]Patch
}

func newMirror(doc *dom.Document) *mirror {
	return &mirror{
		doc:    doc,
		nodes:  make(map[string]*dom.Element),
		sigs:   make(map[string]string),
		pushed: make(map[string]Patch),
	}
}

// apply folds a snapshot into the document and resolves clicks to the
// mirrored link elements
func (m *mirror) apply(snap snapshot) ([]*dom.Element, error) {
	// A reload restarts key numbering in the tab
	if snap.Session != m.session {
		for key := range m.nodes {
			m.drop(key)
		}
		m.session = snap.Session
	}

	container := m.doc.Query(FeedContainer)
	if container == nil {
		return nil, fmt.Errorf("document has no %s container", FeedContainer)
	}

	present := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		present[n.Key] = true
		if n.HTML == "" {
			continue
		}
		prev, ok := m.nodes[n.Key]
		if ok && m.sigs[n.Key] == n.Sig {
			continue
		}

		// A changed node keeps its place in the feed order
		var added []*dom.Element
		var err error
		if ok && prev.Parent() != nil {
			if added, err = m.doc.Replace(prev, n.HTML); err == nil {
				m.forget(n.Key)
			}
		} else {
			m.drop(n.Key)
			added, err = m.doc.Insert(container, n.HTML)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to mirror node %s: %w", n.Key, err)
		}
		if len(added) == 0 {
			continue
		}
		added[0].SetData(KeyAttr, n.Key)
		m.nodes[n.Key] = added[0]
		m.sigs[n.Key] = n.Sig
	}
	for key := range m.nodes {
		if !present[key] {
			m.drop(key)
		}
	}

	if snap.Location != "" && snap.Location != m.location {
		first := m.location == ""
		m.location = snap.Location
		if !first {
			m.doc.Navigate(snap.Location, snap.Title)
		}
	}

	var clicks []*dom.Element
	for _, c := range snap.Clicks {
		node, ok := m.nodes[c.Key]
		if !ok {
			continue
		}
		if target := findLink(node, c.Href); target != nil {
			clicks = append(clicks, target)
		}
	}
	return clicks, nil
}

// diffPatches returns the nodes whose state changed since the last push,
// ordered by key
func (m *mirror) diffPatches() []Patch {
	var out []Patch
	for key, node := range m.nodes {
		p := Patch{
			Key:    key,
			Mark:   string(types.Read(node)),
			Score:  node.Data(types.ScoreAttr),
			Reason: node.Data(types.ReasonAttr),
			Hidden: node.Hidden(),
		}
		if badge := node.Query("." + filter.BadgeClass); badge != nil {
			p.Badge = Badge{Text: badge.Text(), Title: badge.Attr("title"), Style: badge.Attr("style")}
		}
		if prev, ok := m.pushed[key]; ok && prev == p {
			continue
		}
		m.pushed[key] = p
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// forget discards pushed state so failed patches are resent
func (m *mirror) forget(patches []Patch) {
	for _, p := range patches {
		delete(m.pushed, p.Key)
	}
}

func (m *mirror) drop(key string) {
	if node, ok := m.nodes[key]; ok {
		m.doc.Remove(node)
	}
	m.forget(key)
}

func (m *mirror) forget(key string) {
	delete(m.nodes, key)
	delete(m.sigs, key)
	delete(m.pushed, key)
}

func findLink(node *dom.Element, href string) *dom.Element {
	links := node.QueryAll(WatchLink)
	for _, a := range links {
		if a.Attr("href") == href {
			return a
		}
	}
	if len(links) > 0 {
		return links[0]
	}
	return nil
}

var mirrored = strings.Join([]string{FeedItems, ShortsShelves, AdWrappers}, ", ")

// collectJS keys new feed nodes, returns their HTML when new or changed,
// and drains the click queue. Setup is idempotent so a reload re-installs it.
var collectJS = `(function() {
	if (!window.__ytf) {
		window.__ytf = {
			session: Math.random().toString(36).slice(2) + Date.now().toString(36),
			next: 0,
			sent: {},
			clicks: []
		};
		document.addEventListener('click', function(e) {
			const a = e.target.closest && e.target.closest('` + WatchLink + `');
			if (!a) return;
			const item = a.closest('[data-` + KeyAttr + `]');
			if (!item) return;
			window.__ytf.clicks.push({key: item.dataset.ytfKey, href: a.getAttribute('href') || ''});
		}, true);
	}
	const st = window.__ytf;
	const nodes = [];
	document.querySelectorAll('` + mirrored + `').forEach(function(el) {
		if (!el.dataset.ytfKey) {
			el.dataset.ytfKey = 'n' + (st.next++);
		}
		const key = el.dataset.ytfKey;
		const link = el.querySelector('a[href*="watch?v="], a[href*="shorts/"]');
		const title = el.querySelector('#video-title');
		const sig = (link ? link.getAttribute('href') : '') + '|' + (title ? title.textContent.trim() : '');
		const node = {key: key, sig: sig};
		if (st.sent[key] !== sig) {
			const clone = el.cloneNode(true);
			clone.querySelectorAll('.` + filter.BadgeClass + `').forEach(function(b) { b.remove(); });
			clone.removeAttribute('style');
			['ytFiltered', 'ytScore', 'ytReason', 'ytfHidden'].forEach(function(k) { delete clone.dataset[k]; });
			node.html = clone.outerHTML;
			st.sent[key] = sig;
		}
		nodes.push(node);
	});
	const clicks = st.clicks.splice(0);
	return {session: st.session, location: location.href, title: document.title, nodes: nodes, clicks: clicks};
})()`

// patchJS applies a JSON array of Patch values to the tab
const patchJS = `(function(patches) {
	for (const p of patches) {
		const el = document.querySelector('[data-ytf-key="' + p.key + '"]');
		if (!el) continue;
		if (p.mark) { el.dataset.ytFiltered = p.mark; } else { delete el.dataset.ytFiltered; }
		if (p.score) { el.dataset.ytScore = p.score; }
		if (p.reason) { el.dataset.ytReason = p.reason; }
		if (p.hidden) {
			el.style.display = 'none';
			el.dataset.ytfHidden = '1';
		} else if (el.dataset.ytfHidden) {
			el.style.display = '';
			delete el.dataset.ytfHidden;
		}
		if (p.badge && p.badge.text && !el.querySelector('.yt-filter-badge')) {
			const b = document.createElement('div');
			b.className = 'yt-filter-badge';
			b.textContent = p.badge.text;
			b.title = p.badge.title;
			b.style.cssText = p.badge.style;
			el.style.position = 'relative';
			el.appendChild(b);
		}
	}
})(%s)`
