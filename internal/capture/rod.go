package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/steveyegge/authcap/internal/credstore"
	"github.com/steveyegge/authcap/internal/exitcode"
)

// navigateTimeout bounds the initial page load.
const navigateTimeout = 2 * time.Minute

// RodBrowser drives a Chromium-family browser over the DevTools protocol.
type RodBrowser struct {
	Bin      string
	Headless bool
}

// Launch starts the browser and restores seed into it.
func (b *RodBrowser) Launch(ctx context.Context, seed *credstore.StorageState) (Session, error) {
	if !isExecutableFile(b.Bin) {
		return nil, exitcode.DriverNotFound(b.Bin)
	}

	l := launcher.New().Context(ctx).Bin(b.Bin).Headless(b.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	s := &rodSession{launcher: l, browser: browser}
	if seed != nil {
		if err := s.restore(*seed); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func (s *rodSession) restore(seed credstore.StorageState) error {
	if len(seed.Cookies) > 0 {
		params := make([]*proto.NetworkCookieParam, 0, len(seed.Cookies))
		for _, c := range seed.Cookies {
			params = append(params, cookieToParam(c))
		}
		if err := s.browser.SetCookies(params); err != nil {
			return fmt.Errorf("restoring cookies: %w", err)
		}
	}

	for _, origin := range seed.Origins {
		if len(origin.LocalStorage) == 0 {
			continue
		}
		page, err := s.browser.Page(proto.TargetCreateTarget{URL: origin.Origin})
		if err != nil {
			return fmt.Errorf("opening %s: %w", origin.Origin, err)
		}
		if err := page.Timeout(navigateTimeout).WaitLoad(); err != nil {
			_ = page.Close()
			return fmt.Errorf("loading %s: %w", origin.Origin, err)
		}
		_, err = page.Eval(`(items) => { for (const it of items) localStorage.setItem(it.name, it.value) }`, origin.LocalStorage)
		_ = page.Close()
		if err != nil {
			return fmt.Errorf("restoring localStorage for %s: %w", origin.Origin, err)
		}
	}
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	if err := page.Timeout(navigateTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("loading %s: %w", url, err)
	}
	return nil
}

type pageStorage struct {
	Origin string      `json:"origin"`
	Items  [][2]string `json:"items"`
}

func (s *rodSession) StorageState(ctx context.Context) (credstore.StorageState, error) {
	browser := s.browser.Context(ctx)

	cookies, err := browser.GetCookies()
	if err != nil {
		return credstore.StorageState{}, fmt.Errorf("reading cookies: %w", err)
	}
	state := credstore.StorageState{Cookies: make([]credstore.Cookie, 0, len(cookies))}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, cookieFromProto(c))
	}

	pages, err := browser.Pages()
	if err != nil {
		return credstore.StorageState{}, fmt.Errorf("listing pages: %w", err)
	}
	byOrigin := make(map[string][]credstore.StorageItem)
	for _, page := range pages {
		res, err := page.Eval(`() => JSON.stringify({origin: location.origin, items: Object.entries(localStorage)})`)
		if err != nil {
			// about:blank and error pages have no storage
			continue
		}
		var ps pageStorage
		if err := json.Unmarshal([]byte(res.Value.Str()), &ps); err != nil {
			continue
		}
		if ps.Origin == "" || ps.Origin == "null" {
			continue
		}
		items := make([]credstore.StorageItem, 0, len(ps.Items))
		for _, kv := range ps.Items {
			items = append(items, credstore.StorageItem{Name: kv[0], Value: kv[1]})
		}
		byOrigin[ps.Origin] = items
	}
	state.Origins = originsFromMap(byOrigin)
	return state, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

func originsFromMap(byOrigin map[string][]credstore.StorageItem) []credstore.OriginState {
	origins := make([]credstore.OriginState, 0, len(byOrigin))
	for origin, items := range byOrigin {
		origins = append(origins, credstore.OriginState{Origin: origin, LocalStorage: items})
	}
	sort.Slice(origins, func(i, j int) bool { return origins[i].Origin < origins[j].Origin })
	return origins
}

func cookieFromProto(c *proto.NetworkCookie) credstore.Cookie {
	expires := float64(c.Expires)
	if c.Session {
		expires = -1
	}
	return credstore.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
}

func cookieToParam(c credstore.Cookie) *proto.NetworkCookieParam {
	p := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: proto.NetworkCookieSameSite(c.SameSite),
	}
	if c.Expires > 0 {
		p.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	return p
}

var _ Browser = (*RodBrowser)(nil)
