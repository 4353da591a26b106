package classifier

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/tabguard-ai/tabguard/internal/buckets"
	"github.com/tabguard-ai/tabguard/internal/explain"
	"github.com/tabguard-ai/tabguard/internal/provider"
	"github.com/tabguard-ai/tabguard/internal/risk"
	"github.com/tabguard-ai/tabguard/internal/store"
)

type escalationCall struct {
	origin string
	level  risk.Level
}

type fakeEscalator struct {
	calls []escalationCall
}

func (f *fakeEscalator) Escalate(_ context.Context, origin string, level risk.Level) {
	f.calls = append(f.calls, escalationCall{origin: origin, level: level})
}

type countingParaphraser struct {
	calls int
}

func (p *countingParaphraser) Paraphrase(context.Context, string) (string, error) {
	p.calls++
	return "plain rewording", nil
}

type fixture struct {
	clf *Classifier
	reg *Registry
	agg *buckets.Aggregator
	esc *fakeEscalator
	st  *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	reg := NewRegistry(ctx, st, clock)
	agg := buckets.NewAggregator(st, buckets.Options{Now: clock})
	esc := &fakeEscalator{}
	clf := New(Options{
		Directory:  provider.NewDirectory(ctx, st),
		Registry:   reg,
		Aggregator: agg,
		Cache:      explain.NewCache(ctx, st, 16),
		Escalator:  esc,
		Now:        clock,
	})
	return &fixture{clf: clf, reg: reg, agg: agg, esc: esc, st: st}
}

func jsonPost(url string, bodyLen string) Event {
	return Event{
		Method:    "POST",
		URL:       url,
		ContextID: 1,
		RequestHeaders: []Header{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Content-Length", Value: bodyLen},
		},
		ResponseHeaders: []Header{
			{Name: "Content-Type", Value: "application/json"},
		},
	}
}

func TestClassifyKnownProvider(t *testing.T) {
	f := newFixture(t)
	rec, ok := f.clf.Classify(context.Background(), jsonPost("https://api.openai.com/v1/chat/completions", "9000"))
	if !ok {
		t.Fatalf("event discarded")
	}
	if rec.Classification != ClassKnown || !rec.IsAI {
		t.Fatalf("classification = %s, isAI = %v; want known AI", rec.Classification, rec.IsAI)
	}
	if rec.KnownProvider != "OpenAI" {
		t.Fatalf("KnownProvider = %q", rec.KnownProvider)
	}
	if rec.Risk != RiskMedium {
		t.Fatalf("Risk = %s, want Medium", rec.Risk)
	}
	if !strings.Contains(rec.Reason, "OpenAI") {
		t.Fatalf("Reason = %q", rec.Reason)
	}
	if rec.Explanation == "" {
		t.Fatalf("empty explanation")
	}

	stored, ok := f.reg.Lookup("https://api.openai.com/v1/other")
	if !ok {
		t.Fatalf("record not stored under bucket key")
	}
	if stored.Origin != "https://api.openai.com" {
		t.Fatalf("stored origin = %q", stored.Origin)
	}

	if len(f.esc.calls) != 1 || f.esc.calls[0].level != risk.LevelMedium {
		t.Fatalf("escalations = %+v", f.esc.calls)
	}
}

func TestClassifyAnalyticsBeaconStaysNonAI(t *testing.T) {
	f := newFixture(t)
	ev := Event{
		Method:       "POST",
		URL:          "https://www.google-analytics.com/g/collect",
		ContextID:    3,
		Initiator:    "https://news.example.com",
		ResourceType: "ping",
		RequestHeaders: []Header{
			{Name: "Content-Type", Value: "text/plain"},
			{Name: "Content-Length", Value: "120"},
		},
		ResponseHeaders: []Header{
			{Name: "Content-Type", Value: "image/gif"},
		},
	}
	rec, ok := f.clf.Classify(context.Background(), ev)
	if !ok {
		t.Fatalf("event discarded")
	}
	if rec.IsAI || rec.Classification != ClassUnknown {
		t.Fatalf("analytics beacon misclassified: %+v", rec)
	}
	if rec.Risk != RiskLow {
		t.Fatalf("Risk = %s, want Low", rec.Risk)
	}
	if len(f.esc.calls) != 0 {
		t.Fatalf("unexpected escalation for non-AI record")
	}

	// A large JSON payload changes nothing: analytics endpoints stay
	// unflagged whatever the method or size.
	big := jsonPost("https://www.google-analytics.com/g/collect", "60000")
	big.ContextID = 3
	big.Initiator = "https://news.example.com"
	rec, ok = f.clf.Classify(context.Background(), big)
	if !ok {
		t.Fatalf("large beacon discarded")
	}
	if rec.IsAI || rec.Classification != ClassUnknown {
		t.Fatalf("large analytics payload misclassified: %+v", rec)
	}
	if len(f.esc.calls) != 0 {
		t.Fatalf("unexpected escalation for large beacon")
	}
}

func TestClassifyIgnoredResourceDomains(t *testing.T) {
	f := newFixture(t)
	urls := []string{
		"https://www.googletagmanager.com/gtm.js?id=GTM-XXXX",
		"https://stats.g.doubleclick.net/g/collect",
		"https://connect.facebook.net/en_US/fbevents.js",
		"https://cdn.segment.com/v1/projects/abc/settings",
		"https://cdnjs.cloudflare.com/ajax/libs/model/1.0/model.min.js",
	}
	for _, u := range urls {
		rec, ok := f.clf.Classify(context.Background(), jsonPost(u, "60000"))
		if !ok {
			t.Fatalf("event %q discarded", u)
		}
		if rec.IsAI {
			t.Fatalf("ignored domain flagged: %q -> %+v", u, rec)
		}
	}
}

func TestClassifyDiscards(t *testing.T) {
	f := newFixture(t)
	cases := []Event{
		{Method: "GET", URL: "chrome-extension://abcdef/page.html", ContextID: 1},
		{Method: "GET", URL: "not a url", ContextID: 1},
		{Method: "GET", URL: "https://example.com/", ContextID: -1},
	}
	for _, ev := range cases {
		if _, ok := f.clf.Classify(context.Background(), ev); ok {
			t.Fatalf("event %q not discarded", ev.URL)
		}
	}
}

func TestClassifyPathHeuristic(t *testing.T) {
	f := newFixture(t)
	rec, ok := f.clf.Classify(context.Background(), jsonPost("https://api.startup.example/v1/generate", "9000"))
	if !ok {
		t.Fatalf("event discarded")
	}
	if rec.Classification != ClassHeuristic || !rec.IsAI {
		t.Fatalf("classification = %s, isAI = %v", rec.Classification, rec.IsAI)
	}
	if !strings.Contains(rec.Reason, "path") {
		t.Fatalf("Reason = %q", rec.Reason)
	}
}

func TestClassifyMediaUploadRisksHigh(t *testing.T) {
	f := newFixture(t)
	ev := Event{
		Method:    "POST",
		URL:       "https://api.startup.example/v1/vision",
		ContextID: 1,
		RequestHeaders: []Header{
			{Name: "Content-Type", Value: "multipart/form-data; boundary=x"},
			{Name: "Content-Length", Value: "80000"},
		},
		ResponseHeaders: []Header{
			{Name: "Content-Type", Value: "application/json"},
		},
	}
	rec, ok := f.clf.Classify(context.Background(), ev)
	if !ok {
		t.Fatalf("event discarded")
	}
	if !rec.IsAI || rec.Risk != RiskHigh {
		t.Fatalf("media upload risk = %s, isAI = %v", rec.Risk, rec.IsAI)
	}
	if len(f.esc.calls) != 1 || f.esc.calls[0].level != risk.LevelHigh {
		t.Fatalf("escalations = %+v", f.esc.calls)
	}
}

func TestClassifyUnknownAILike(t *testing.T) {
	f := newFixture(t)
	ev := Event{
		Method:    "POST",
		URL:       "https://ingest.newhost.example/collect-batch",
		ContextID: 1,
		RequestHeaders: []Header{
			{Name: "Content-Type", Value: "application/x-ndjson"},
			{Name: "Content-Length", Value: "60000"},
		},
	}
	rec, ok := f.clf.Classify(context.Background(), ev)
	if !ok {
		t.Fatalf("event discarded")
	}
	if rec.Reason != "Unknown AI-like traffic" || rec.Classification != ClassHeuristic {
		t.Fatalf("unknown-host heuristic missed: %+v", rec)
	}

	// The host is now seen, so the identical event no longer trips it.
	again, _ := f.clf.Classify(context.Background(), ev)
	if again.IsAI {
		t.Fatalf("seen host still flagged: %+v", again)
	}
}

func TestClassifyUnknownAILikeSkips(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		ev   Event
	}{
		{"quiet resource type", Event{
			Method: "GET", URL: "https://cdn.newhost.example/font.woff2", ContextID: 1,
			ResourceType:   "font",
			RequestHeaders: []Header{{Name: "Authorization", Value: "Bearer x"}},
		}},
		{"trivial body", Event{
			Method: "POST", URL: "https://tiny.newhost.example/submit-form", ContextID: 1,
			RequestHeaders: []Header{
				{Name: "Authorization", Value: "Bearer x"},
				{Name: "Content-Length", Value: "150"},
			},
		}},
		{"bodyless authenticated fetch", Event{
			Method: "GET", URL: "https://api.fresh-saas.example/account/profile-data", ContextID: 1,
			RequestHeaders: []Header{{Name: "Authorization", Value: "Bearer x"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, ok := f.clf.Classify(context.Background(), tc.ev)
			if !ok {
				t.Fatalf("event discarded")
			}
			if rec.IsAI {
				t.Fatalf("flagged despite skip condition: %+v", rec)
			}
		})
	}
}

func TestClassifyPIICorrelation(t *testing.T) {
	f := newFixture(t)
	origin := "https://forum.example.com"
	if !f.agg.MarkPII(7, origin, []string{"email"}, "hash-1") {
		t.Fatalf("MarkPII rejected")
	}

	ev := Event{
		Method:    "GET",
		URL:       "https://static.example.net/page-assets",
		ContextID: 7,
		Initiator: origin,
	}
	rec, ok := f.clf.Classify(context.Background(), ev)
	if !ok {
		t.Fatalf("event discarded")
	}
	if !rec.IsAI || rec.Classification != ClassHeuristic {
		t.Fatalf("PII correlation not applied: %+v", rec)
	}
	if !strings.Contains(rec.Reason, "correlated") {
		t.Fatalf("Reason = %q", rec.Reason)
	}
	for _, kind := range []string{"email"} {
		if strings.Contains(rec.Reason, kind+"@") {
			t.Fatalf("reason leaks PII detail: %q", rec.Reason)
		}
	}
}

func TestClassifyExplanationCacheReusesParaphrase(t *testing.T) {
	f := newFixture(t)
	p := &countingParaphraser{}
	f.clf.para = p

	ev := jsonPost("https://api.openai.com/v1/chat/completions", "9000")
	first, _ := f.clf.Classify(context.Background(), ev)
	second, _ := f.clf.Classify(context.Background(), ev)

	if p.calls != 1 {
		t.Fatalf("paraphraser called %d times, want 1", p.calls)
	}
	if first.Explanation != second.Explanation {
		t.Fatalf("cached explanation differs: %q vs %q", first.Explanation, second.Explanation)
	}
	if first.Explanation != "plain rewording" {
		t.Fatalf("paraphrased text not used: %q", first.Explanation)
	}
}

type fixedParaphraser struct {
	text string
}

func (p fixedParaphraser) Paraphrase(context.Context, string) (string, error) {
	return p.text, nil
}

func TestClassifyExplanationCapKeepsRunesWhole(t *testing.T) {
	f := newFixture(t)
	f.clf.para = fixedParaphraser{text: strings.Repeat("個人情報が送信されます。", 30)}

	rec, ok := f.clf.Classify(context.Background(), jsonPost("https://api.openai.com/v1/chat/completions", "9000"))
	if !ok {
		t.Fatalf("event discarded")
	}
	if !utf8.ValidString(rec.Explanation) {
		t.Fatalf("explanation cap split a multi-byte rune: %q", rec.Explanation)
	}
	if n := utf8.RuneCountInString(rec.Explanation); n > 160 {
		t.Fatalf("explanation is %d runes, want <= 160", n)
	}
}

func TestClassifyFeedsSignalBuckets(t *testing.T) {
	f := newFixture(t)
	f.clf.Classify(context.Background(), jsonPost("https://api.openai.com/v1/chat/completions", "9000"))

	b := f.agg.GetActiveBucket(1, "https://api.openai.com")
	if b == nil {
		t.Fatalf("no bucket recorded")
	}
	if b.Counts.AIPost != 1 {
		t.Fatalf("Counts = %+v, want one aiPost", b.Counts)
	}
}

func TestBucketKeyFromURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://api.openai.com/v1/chat/completions", "https://api.openai.com/v1"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com", "https://example.com/"},
		{"not a url at all", "not a url at all"},
	}
	for _, tc := range cases {
		if got := BucketKeyFromURL(tc.in); got != tc.want {
			t.Fatalf("BucketKeyFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistryForOriginSorted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	base := time.Unix(1_700_000_000, 0)
	reg := NewRegistry(ctx, st, func() time.Time { return base })

	reg.Save(ctx, Record{Origin: "https://a.example", URL: "https://svc.example/one", LastSeen: base})
	reg.Save(ctx, Record{Origin: "https://a.example", URL: "https://svc.example/two", LastSeen: base.Add(time.Minute)})
	reg.Save(ctx, Record{Origin: "https://b.example", URL: "https://svc.example/three", LastSeen: base})

	got := reg.ForOrigin("https://a.example")
	if len(got) != 2 {
		t.Fatalf("ForOrigin returned %d records, want 2", len(got))
	}
	if got[0].URL != "https://svc.example/two" {
		t.Fatalf("records not sorted lastSeen desc: %+v", got)
	}

	// Records survive a reopen.
	reopened := NewRegistry(ctx, st, func() time.Time { return base })
	if len(reopened.ForOrigin("https://a.example")) != 2 {
		t.Fatalf("records lost across restore")
	}
}

func TestRegistrySeenHostsExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	reg := NewRegistry(ctx, store.NewMemory(), func() time.Time { return now })

	reg.MarkSeen(ctx, "api.example.com")
	if !reg.SeenRecently("api.example.com") {
		t.Fatalf("fresh host not seen")
	}

	now = now.Add(SeenHostWindow + time.Minute)
	if reg.SeenRecently("api.example.com") {
		t.Fatalf("stale host still seen")
	}
}

func TestGuessDataTypes(t *testing.T) {
	headers := []Header{
		{Name: "Content-Type", Value: "application/json; charset=utf-8"},
		{Name: "Accept", Value: "image/png, application/json"},
	}
	got := guessDataTypes(headers)
	want := []string{"image", "json"}
	if len(got) != len(want) {
		t.Fatalf("guessDataTypes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("guessDataTypes = %v, want %v", got, want)
		}
	}
}
