package market

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/updownlabs/dipcatcher/internal/price"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves canned metadata and records the probe order.
type fakeSource struct {
	windows map[string]*Metadata
	probed  []string
	err     error
}

func (f *fakeSource) FetchBySlug(slug string) (*Metadata, error) {
	f.probed = append(f.probed, slug)
	if f.err != nil {
		return nil, f.err
	}
	return f.windows[slug], nil
}

const testAsset = "btc-updown-15m-"

var testNow = time.Date(2026, 8, 30, 12, 7, 0, 0, time.UTC)

func newTestResolver(src Source) *Resolver {
	r := NewResolver(src, 15*time.Minute, testLogger())
	r.now = func() time.Time { return testNow }
	return r
}

func windowSlugs() (current, next, previous string) {
	start := testNow.Truncate(15 * time.Minute)
	return Slug(testAsset, start),
		Slug(testAsset, start.Add(15*time.Minute)),
		Slug(testAsset, start.Add(-15*time.Minute))
}

func meta(slug string, accepting bool) *Metadata {
	return &Metadata{
		Slug:            slug,
		AcceptingOrders: accepting,
		EndTime:         testNow.Add(10 * time.Minute),
		Tokens:          map[string]string{SideUp: "tok-up-" + slug, SideDown: "tok-down-" + slug},
		Prices:          map[string]price.Price{SideUp: 500_000, SideDown: 500_000},
	}
}

func TestResolveCurrentProbesInOrder(t *testing.T) {
	current, next, previous := windowSlugs()

	tests := []struct {
		name     string
		windows  map[string]*Metadata
		wantSlug string
	}{
		{
			"current accepting",
			map[string]*Metadata{current: meta(current, true)},
			current,
		},
		{
			"current closed, next accepting",
			map[string]*Metadata{current: meta(current, false), next: meta(next, true)},
			next,
		},
		{
			"only previous accepting",
			map[string]*Metadata{previous: meta(previous, true)},
			previous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{windows: tt.windows}
			got, err := newTestResolver(src).ResolveCurrent(testAsset)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got.Slug != tt.wantSlug {
				t.Errorf("slug: got %s, want %s", got.Slug, tt.wantSlug)
			}
		})
	}
}

func TestResolveCurrentProbeOrder(t *testing.T) {
	current, next, previous := windowSlugs()
	src := &fakeSource{}

	_, err := newTestResolver(src).ResolveCurrent(testAsset)
	if !errors.Is(err, ErrNoTradableWindow) {
		t.Fatalf("got %v, want ErrNoTradableWindow", err)
	}

	want := []string{current, next, previous}
	if fmt.Sprint(src.probed) != fmt.Sprint(want) {
		t.Errorf("probe order: got %v, want %v", src.probed, want)
	}
}

func TestResolveCurrentToleratesProbeErrors(t *testing.T) {
	current, next, previous := windowSlugs()
	_ = next

	src := &fakeSource{windows: map[string]*Metadata{previous: meta(previous, true)}}
	// First two probes fail with a transient error; the error source
	// clears before the final probe.
	calls := 0
	wrapped := sourceFunc(func(slug string) (*Metadata, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("gamma timeout")
		}
		return src.FetchBySlug(slug)
	})

	got, err := newTestResolver(wrapped).ResolveCurrent(testAsset)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Slug != previous {
		t.Errorf("slug: got %s, want %s", got.Slug, previous)
	}
	_ = current
}

type sourceFunc func(slug string) (*Metadata, error)

func (f sourceFunc) FetchBySlug(slug string) (*Metadata, error) { return f(slug) }

func TestSlugFlooring(t *testing.T) {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	got := Slug(testAsset, start)
	want := fmt.Sprintf("btc-updown-15m-%d", start.Unix())
	if got != want {
		t.Errorf("slug: got %s, want %s", got, want)
	}
}

func TestMetadataSideFor(t *testing.T) {
	m := meta("s", true)
	side, ok := m.SideFor(m.Tokens[SideUp])
	if !ok || side != SideUp {
		t.Errorf("got %s/%v", side, ok)
	}
	if _, ok := m.SideFor("unknown"); ok {
		t.Error("unknown token must not resolve")
	}
}

func TestMetadataExpired(t *testing.T) {
	m := meta("s", true)
	if m.Expired(testNow) {
		t.Error("not yet expired")
	}
	if !m.Expired(m.EndTime.Add(time.Second)) {
		t.Error("should be expired after end time")
	}
}
