package reader_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/reader"
	"github.com/MrWong99/bookparser/pkg/provider/llm"
	"github.com/MrWong99/bookparser/pkg/types"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "猫が食べた。", []string{"猫が食べた。"}},
		{"two on a line", "猫が来た。犬も来た。", []string{"猫が来た。", "犬も来た。"}},
		{"trailing fragment", "猫が来た。そして", []string{"猫が来た。", "そして"}},
		{"lines and blanks", "一行目。\n\n  \n二行目\n三行目。", []string{"一行目。", "二行目", "三行目。"}},
		{"windows newlines", "甲。\r\n乙。\r\n", []string{"甲。", "乙。"}},
		{"repeated stop", "えっ。。本当", []string{"えっ。。", "本当"}},
		{"empty", " \n ", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := reader.SplitSentences(tc.in); !slices.Equal(got, tc.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestProcessBook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sentences := []string{"甲。", "乙。", "丙。"}
	f.analyzer.BySentence = map[string][]types.RawUnit{"乙。": nil}

	var mu sync.Mutex
	var seen []int
	p := f.processor(t, reader.WithConcurrency(2))

	res, err := p.ProcessBook(context.Background(), sentences, reader.BookOptions{
		OnResult: func(i int, _ *reader.SentenceResult) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("ProcessBook: %v", err)
	}
	if res.Processed() != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed())
	}
	if !errors.Is(res.Errors[1], reader.ErrNoTokens) || res.Results[1] != nil {
		t.Errorf("sentence 1: result=%v err=%v", res.Results[1], res.Errors[1])
	}
	for _, i := range []int{0, 2} {
		if res.Results[i] == nil || res.Results[i].SentenceIndex != i {
			t.Errorf("sentence %d: result = %+v", i, res.Results[i])
		}
	}
	slices.Sort(seen)
	if !slices.Equal(seen, []int{0, 2}) {
		t.Errorf("OnResult indices = %v", seen)
	}

	// The model sees each sentence's neighbours as context.
	var sawContext bool
	for _, c := range f.llm.CompleteCalls {
		user := c.Req.Messages[0].Content
		if strings.Contains(user, "Current sentence: 丙。") {
			sawContext = strings.Contains(user, "Previous sentence: 乙。") && !strings.Contains(user, "Next sentence")
		}
	}
	if !sawContext {
		t.Error("last sentence was not sent with its previous neighbour")
	}
}

func TestProcessBook_LocalModeSkipsModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.processor(t).ProcessBook(context.Background(), []string{"甲。", "乙。"}, reader.BookOptions{Mode: enrich.ModeLocal})
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed() != 2 || f.llm.CallCount() != 0 {
		t.Errorf("processed=%d model calls=%d", res.Processed(), f.llm.CallCount())
	}
	for _, r := range res.Results {
		if r.Status != reader.StatusLocal {
			t.Errorf("Status = %q", r.Status)
		}
	}
}

func TestProcessBook_CancelAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.llm.CompleteFunc = func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.processor(t).ProcessBook(ctx, []string{"甲。", "乙。", "丙。"}, reader.BookOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestProcessBook_Empty(t *testing.T) {
	t.Parallel()

	res, err := newFixture(t).processor(t).ProcessBook(context.Background(), nil, reader.BookOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed() != 0 {
		t.Errorf("Processed = %d", res.Processed())
	}
}
