package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/models"
	"github.com/snapshare/snapfeed/internal/store/memory"
	"github.com/snapshare/snapfeed/internal/trending"
)

type capturePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (p *capturePublisher) PublishMsg(m *nats.Msg) error {
	p.msgs = append(p.msgs, m)
	return p.err
}

type recordingFanout struct {
	mu    sync.Mutex
	posts []*models.Post
	err   error
}

func (f *recordingFanout) OnPostCreated(_ context.Context, post *models.Post) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	return 1, f.err
}

func TestNATSDispatcher_RoundTrip(t *testing.T) {
	pub := &capturePublisher{}
	d := &NATSDispatcher{conn: pub, subject: "snapfeed.post.created"}
	post := &models.Post{ID: "p1", AuthorID: "alice", Text: "hello", Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}

	if err := d.Dispatch(context.Background(), post); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Subject != "snapfeed.post.created" {
		t.Fatalf("published = %+v", pub.msgs)
	}

	fan := &recordingFanout{}
	c := NewFanoutConsumer(fan, time.Second, zap.NewNop())
	c.HandleMsg(pub.msgs[0])

	if len(fan.posts) != 1 {
		t.Fatalf("fan-out calls = %d, want 1", len(fan.posts))
	}
	got := fan.posts[0]
	if got.ID != "p1" || got.AuthorID != "alice" || !got.Timestamp.Equal(post.Timestamp) {
		t.Errorf("delivered post = %+v", got)
	}
}

func TestFanoutConsumer_Handle(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		fanErr  error
		wantErr bool
		calls   int
	}{
		{name: "valid", data: `{"id":"p1","author_id":"a"}`, calls: 1},
		{name: "garbage", data: `{not json`, wantErr: true},
		{name: "missing author", data: `{"id":"p1"}`, wantErr: true},
		{name: "fan-out error", data: `{"id":"p1","author_id":"a"}`, fanErr: errors.New("boom"), wantErr: true, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fan := &recordingFanout{err: tt.fanErr}
			c := NewFanoutConsumer(fan, 0, zap.NewNop())
			err := c.Handle(context.Background(), []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(fan.posts) != tt.calls {
				t.Errorf("calls = %d, want %d", len(fan.posts), tt.calls)
			}
		})
	}
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error { return nil }

type recordingSink struct {
	tags []string
	at   []time.Time
	err  error
}

func (s *recordingSink) RecordAt(_ context.Context, hashtags []string, at time.Time) error {
	s.tags = append(s.tags, hashtags...)
	s.at = append(s.at, at)
	return s.err
}

func TestMentionPublisher_Record(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w := &captureWriter{}
	p := &MentionPublisher{writer: w, now: func() time.Time { return at }}

	if err := p.Record(context.Background(), nil); err != nil || len(w.msgs) != 0 {
		t.Fatalf("empty record wrote %d messages, err %v", len(w.msgs), err)
	}
	if err := p.Record(context.Background(), []string{"#go", "#rust"}); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(w.msgs))
	}
	for i, tag := range []string{"#go", "#rust"} {
		if string(w.msgs[i].Key) != tag {
			t.Errorf("key[%d] = %q, want %q", i, w.msgs[i].Key, tag)
		}
		var ev Mentioned
		if err := json.Unmarshal(w.msgs[i].Value, &ev); err != nil {
			t.Fatal(err)
		}
		if len(ev.Hashtags) != 1 || ev.Hashtags[0] != tag || !ev.At.Equal(at) {
			t.Errorf("event[%d] = %+v", i, ev)
		}
	}

	w.err = errors.New("broker down")
	if err := p.Record(context.Background(), []string{"#go"}); err == nil {
		t.Error("expected write error")
	}
}

func TestMentionPublisher_MatchesInlineCounts(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	hashtags := []string{"#a", "#a", "#b", "", "#a"}

	count := func(svc *trending.Service) map[string]int64 {
		t.Helper()
		topics, err := svc.Top(ctx, 100, 0)
		if err != nil {
			t.Fatalf("Top() error = %v", err)
		}
		out := make(map[string]int64, len(topics))
		for _, tc := range topics {
			out[tc.Topic] = tc.MentionCount
		}
		return out
	}
	newService := func() *trending.Service {
		svc := trending.NewService(memory.New(), nil, trending.Options{MaxLimit: 100}, zap.NewNop())
		svc.SetClock(func() time.Time { return at })
		return svc
	}

	inline := newService()
	if err := inline.Record(ctx, hashtags); err != nil {
		t.Fatal(err)
	}

	w := &captureWriter{}
	p := &MentionPublisher{writer: w, now: func() time.Time { return at }}
	if err := p.Record(ctx, hashtags); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("messages = %d, want one per distinct tag", len(w.msgs))
	}
	viaKafka := newService()
	c := &MentionConsumer{reader: &queueReader{msgs: w.msgs}, sink: viaKafka, logger: zap.NewNop()}
	if err := c.Run(ctx); err != nil {
		t.Fatal(err)
	}

	want, got := count(inline), count(viaKafka)
	if len(got) != len(want) {
		t.Fatalf("kafka counts = %v, inline counts = %v", got, want)
	}
	for tag, n := range want {
		if got[tag] != n {
			t.Errorf("%s: kafka = %d, inline = %d", tag, got[tag], n)
		}
	}
	if want["#a"] != 1 {
		t.Errorf("#a counted %d times, want 1", want["#a"])
	}
}

type queueReader struct {
	msgs []kafka.Message
}

func (r *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *queueReader) Close() error { return nil }

func TestMentionConsumer_Run(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	good, _ := json.Marshal(Mentioned{Hashtags: []string{"#go"}, At: at})
	noTime, _ := json.Marshal(Mentioned{Hashtags: []string{"#go"}})

	sink := &recordingSink{}
	c := &MentionConsumer{
		reader: &queueReader{msgs: []kafka.Message{
			{Value: good},
			{Value: []byte("garbage")},
			{Value: noTime},
			{Value: good},
		}},
		sink:   sink,
		logger: zap.NewNop(),
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if len(sink.tags) != 2 {
		t.Fatalf("recorded = %v, want two #go mentions", sink.tags)
	}
	for _, got := range sink.at {
		if !got.Equal(at) {
			t.Errorf("recorded at %v, want %v", got, at)
		}
	}
}

func TestHeaderCarrier(t *testing.T) {
	var headers []kafka.Header
	c := headerCarrier{headers: &headers}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("tracestate", "x")

	if got := c.Get("traceparent"); got != "b" {
		t.Errorf("Get = %q, want b", got)
	}
	if len(c.Keys()) != 2 {
		t.Errorf("Keys = %v", c.Keys())
	}
	if c.Get("missing") != "" {
		t.Error("missing key should be empty")
	}
}
